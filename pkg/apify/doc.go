// Package apify retrieves Instagram profiles and posts through the Apify
// Instagram scraper actor.
//
// The actor is run synchronously and its dataset items are returned in the
// same response. Every item is a post; with addParentData enabled each one
// also carries the owner's profile fields, so a single call yields both.
package apify
