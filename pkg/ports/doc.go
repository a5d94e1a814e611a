/*
Package ports defines the driven ports (interfaces) for the Drew engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various language models, catalogs, knowledge sources and
conversation stores.

# Key Interfaces

  - KnowledgeBase: Tradecraft document lookup by job type.
  - Interpreter: Delegated interpretation of open-ended or unclear input.
  - ChecklistAdjuster: Adjusts a base checklist from scoping answers.
  - ProductSearcher: Catalog full-text search.
  - ContextStore: Persists conversations for stateful transports.
  - DistributedLocker: Provides distributed locking for concurrent access to one conversation.
*/
package ports
