/*
Package message provides the notification layer between the xmlmill core
and its embedding application.

The core publishes three kinds of Event on a Bus: the active profile
connection changed, the profile learned something (with a summary of
what), and a document node changed. Notifications are published only
after the mutation they describe is complete, so the core never depends
on a subscriber to keep its own state consistent.

Delivery order

Publish calls every subscriber synchronously, in the order they
subscribed, before returning. Event IDs are ULIDs drawn from a
monotonic entropy source, so sorting by ID reproduces publication
order across subscribers.
*/
package message
