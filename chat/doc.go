// Package chat connects to Twitch IRC and turns chat messages into dispatch events.
//
// The Listener joins the channel set it was built with and calls its Handler once per
// message, concurrently. Channels are joined once; a registry refresh that introduces new
// channels does not change the joined set until the process restarts.
//
// Credentials: with TWITCH_BOT_USERNAME and TWITCH_OAUTH_TOKEN set the client logs in as the
// bot account, otherwise it connects anonymously, which is enough to read chat.
package chat
