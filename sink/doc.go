// Package sink writes a result stream to its destination.
//
// [FileSink] streams to a temporary file next to the destination path and
// renames it into place only after the whole stream has been written and
// synced, so a failed transfer never leaves a partial file at the
// destination:
//
//	s := sink.NewFileSink("out.tbl", sink.WithProgress())
//	err := s.Consume(ctx, resp.Body, resp.ContentLength)
//
// [MemorySink] spools the stream to a temporary file, parses it with
// [github.com/adamwoolhether/koatap/table.Parse] and removes the file
// again, whether parsing succeeded or not:
//
//	s := sink.NewMemorySink(table.FormatVOTable)
//	err := s.Consume(ctx, resp.Body, resp.ContentLength)
//	tbl := s.Table()
package sink
