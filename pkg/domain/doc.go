/*
Package domain contains the core domain models for the Drew quote engine.

It defines the closed set of conversation states, the typed events the parser
produces, the conversation context that carries all memory between turns, and
the quote arithmetic. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture
principles.

# Key Entities

  - ConversationState: A stage of the dialogue (greeting through done, plus clarify).
  - Event: The sealed set of parser outputs that drive transitions.
  - Context: The full conversation memory, cloned on every step.
  - TradecraftDoc: Per-job-type guidance, scoping questions and base checklist.
  - QuoteSummary: The derived, priced view of a context.
*/
package domain
