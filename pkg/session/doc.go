// Package session tracks the progress of analysis runs.
//
// A Tracker is an in-memory store owned by the process. Each session moves
// forward through the phases queued, scraping, processing_media, analyzing
// and ends in completed or error. Progress never moves backward while a
// session is active and a terminal session never changes again.
//
// Readers get copies, so a status poll never observes a half-applied update:
//
//	tr := session.NewTracker(time.Hour)
//	tr.Create("alice_1")
//	tr.Update("alice_1", session.Update{Status: session.StatusScraping, Progress: 10})
//	snap, _ := tr.Get("alice_1")
//
// Subscribers receive snapshots as they change; a slow subscriber only ever
// sees the latest one.
package session
