// ABOUTME: Package transport abstracts the chat delivery channel
// ABOUTME: Normalized Update/Callback types, a Sender interface, Telegram adapter

// Package transport isolates the rest of the bot from the chat platform.
// Inbound events arrive as normalized Updates; outbound traffic goes
// through the Sender interface. The only concrete implementation speaks
// the Telegram Bot API; tests substitute a recording fake.
package transport
