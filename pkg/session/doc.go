/*
Package session serializes turns of stored conversations.

The engine is a pure function of its request, so a stateful transport has to
load the stored context, dispatch, and save the result without a second turn
for the same conversation interleaving. Manager does that with a local
per-conversation mutex and, across replicas, an optional DistributedLocker.
*/
package session
