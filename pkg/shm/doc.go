// Package shm exposes named POSIX shared memory segments that independent
// processes can map by agreeing on a name.
//
// A segment is opened with create-or-attach semantics: the first process to
// open a name creates and sizes the backing object, later processes attach to
// it. Exactly one opener per name sees Created() == true.
//
// Example usage:
//
//	seg, err := shm.Open(ctx, shm.OpenOptions{Name: "jobs", Size: 4096})
//	if err != nil {
//	  return err
//	}
//	defer seg.Close()
//	if seg.Created() {
//	  // initialize the layout inside seg.Bytes()
//	}
//
// Closing a segment only unmaps this process's view. Remove takes the name
// out of the namespace; processes that already mapped it keep their view.
//
// Platform-specific helpers are in internal/shm.
package shm
