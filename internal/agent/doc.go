// Package agent contains the conversation kernel that turns console input
// into model requests and wallet actions. It owns the turn loop, replays
// session history to the model, executes the actions the model selects, and
// feeds every result back for narration.
package agent
