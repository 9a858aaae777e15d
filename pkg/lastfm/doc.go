// Package lastfm provides a client for audioscrobbler-compatible services
// (Last.fm API 2.0, Libre.fm).
//
// # Overview
//
// The package covers the parts of the API a scrobbler needs: the token →
// authorization → session handshake, now-playing updates, scrobbles and
// love/unlove. Every call is signed, carries its parameters in the query
// string and is answered with a status-bearing envelope.
//
// # Quick Start
//
// A client is bound to one service label and to a DocumentStore that holds
// the credentials for that label:
//
//	client, err := lastfm.NewClient(lastfm.Config{
//	    Label:     "Last.fm",
//	    APIKey:    "your-api-key",
//	    APISecret: "your-api-secret",
//	    Store:     lastfm.NewMemoryStore(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Authentication
//
//  1. Request a token and send the user to the authorization page
//  2. Once the user has authorized it, trade the token for a session
//  3. The session is stored and reused by every later call
//
// Example:
//
//	authURL, err := client.Auth().URL(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Please visit:", authURL)
//	fmt.Scanln()
//
//	session, err := client.Auth().Session(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Signed in as", session.Name)
//
// A failed trade clears the stored credentials; the user has to start over
// with a new token.
//
// # Scrobbling
//
//	song := lastfm.Song{
//	    Artist:         "The Beatles",
//	    Track:          "Yesterday",
//	    Album:          "Help!",
//	    StartTimestamp: started,
//	}
//	err := client.Track().UpdateNowPlaying(ctx, song)
//	err = client.Track().Scrobble(ctx, song)
//	err = client.Track().ToggleLove(ctx, song, true)
//
// # Error Handling
//
// Every error wraps exactly one of ErrAuth or ErrOther. ResultOf collapses
// an error to a Result:
//
//	switch lastfm.ResultOf(err) {
//	case lastfm.ResultOK:
//	case lastfm.ResultAuthError:
//	    // ask the user to authorize again
//	case lastfm.ResultOtherError:
//	    // log, maybe queue for later
//	}
//
// Failed envelopes also carry an *Error with the service error code. The
// package never retries; retry policy belongs to the caller.
//
// # Multiple Services
//
// A Registry maps labels to clients, e.g. one for Last.fm (LastFM
// endpoints) and one for Libre.fm (LibreFM endpoints).
package lastfm
