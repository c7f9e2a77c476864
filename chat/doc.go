// Package chat is the Twitch IRC transport for the tracker bot.
//
// It joins the configured channel, forwards every human message to the
// tracker pipeline, and implements the pipeline's Prompter port: outbound
// replies plus bounded waits for the next message from a specific
// (channel, user) pair. The wait registry is what turns a flat IRC stream
// into the request/response prompts the resolver needs; a reply from anyone
// other than the original requester never satisfies a wait.
//
// Credentials: the IRC client requires a bot username and an OAuth token with
// chat:read/chat:edit scopes (TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN).
package chat
