/*
Package sync implements mtpsync's synchronization engine. A run is one-way:
the local source tree is pushed onto the device, and nothing on the device is
ever deleted.

There are two flows:

1) Verify -- The source tree is scanned into a manifest, the manifest is
   diffed against the device's remote index, and the differences are written
   out as an execution plan: an ordered mapping from relative path to "file"
   or "dir".
2) Execute -- An execution plan is applied in two strict phases. All folders
   are created first, so that every file's parent exists before its upload is
   attempted, and then all files are uploaded, optionally verified by
   downloading them back and comparing digests. Entries that fail don't abort
   the run; they're collected into a retry plan, which is itself a valid
   execution plan for a later run.

The remote index has a single writer for the duration of a run: the executor
updates it as folders and files are created, so later plan entries observe
the work already done, and re-running a plan against an unchanged device is a
no-op.
*/
package sync
