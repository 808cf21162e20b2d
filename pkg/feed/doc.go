// Package feed delivers remote row changes for a tree or conversation.
//
// A [Client] opens a [Subscription] for a [Channel] over a [Transport].
// Each subscription owns one producer goroutine that reads the transport
// stream, drops events outside the channel's bindings and forwards the rest
// on [Subscription.Events]:
//
//	sub, err := feed.NewClient(transport).Subscribe(ctx, feed.TreeChannel(id))
//	if err != nil {
//	    return err
//	}
//	defer sub.Close()
//	for ev := range sub.Events() {
//	    // apply ev
//	}
//
// # Delivery
//
// Events arrive in commit order per table, with no order across tables.
// After a disconnect the subscription reconnects, paced by a rate limiter,
// and the server may replay events already delivered. Consumers must apply
// events idempotently; the store package does.
//
// # Teardown
//
// [Subscription.Close] is the only cancellation primitive. It is
// synchronous: when it returns the producer has exited and the events
// channel is closed, so nothing is delivered afterwards.
package feed
