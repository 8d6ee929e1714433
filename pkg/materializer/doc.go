// Package materializer turns a timeline batch into artifact files.
//
// Messages are written strictly in arrival order so that the most recently
// created file always belongs to the newest stored message. Non-published
// messages are logged and skipped. A media download failure is recorded
// in the Result and the batch continues; callers feed Result.Failed into
// the member ledger so the message is fetched again next run.
package materializer
