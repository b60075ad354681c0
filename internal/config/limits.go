package config

const (
	// MaxQueryLength bounds the inbound "query" field (spec.md §6: "query
	// (required, non-empty string)"); a query beyond this is rejected at
	// the transport boundary before admission is even consulted.
	MaxQueryLength = 8000

	// MaxHistoryTurns bounds how many ChatTurn records from the request's
	// "history" field are forwarded into the classifier/writer prompts.
	MaxHistoryTurns = 50

	// MaxSystemInstructionsLength bounds the optional
	// "systemInstructions" field. The handler truncates it and the
	// orchestrator carries it on Request, but the writer prompt does not
	// include it.
	MaxSystemInstructionsLength = 4000
)
