// Package state keeps one active conversation flow per user and expires flows
// that wait too long for the user's next step. It knows nothing about the flows
// themselves beyond the Flow interface, so it can be reused across bots.
package state
