/*
Package server provides the HTTP front of a CalDAV and CardDAV store that can be integrated into Go applications.
It authenticates requests, maps request paths onto store URIs and hands DELETE to the deletion orchestrator.

# Basic Usage

The simplest way to use this package is with the provided in-memory storage:

	store := memory.New()
	_ = store.AddUser("alice", "secret", "mailto:alice@example.com")

	handler := server.NewCaldavHandler(store, store, nil, server.WithPrefix("/caldav/"))
	http.Handle("/caldav/", handler)
	http.ListenAndServe(":8080", nil)

Passing a nil orchestrator builds one from the deletion settings of the configuration, with an
in-process lock table and no implicit scheduling. Build your own with deletion.New to add a
cross-process lock factory, a scheduling trigger or metrics.

# URL Scheme

Request paths below the prefix are store URIs:
  - /<userid> - User principal
  - /<userid>/cal - Calendar home
  - /<userid>/cal/<calendarid> - Calendar collection
  - /<userid>/cal/<calendarid>/<objectid> - Calendar object
  - /<userid>/card - Address book home
  - /<userid>/card/<addressbookid> - Address book collection
  - /<userid>/card/<addressbookid>/<objectid> - Address object

The first segment is the owner. A user can only reach their own tree; collections shared with
them appear inside it.

# DELETE

The Depth header defaults to infinity, and collections refuse any other value. If-Schedule-Tag-Match
is honored on calendar objects. A delete that removed some members but not others answers
207 Multi-Status listing only the failed members; failures of the request as a whole carry a
DAV:error body, with a precondition element where one applies:

	<D:error xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
	  <C:default-calendar-delete-allowed/>
	</D:error>

# Configuration

Config can be built from options or loaded from YAML:

	prefix: /caldav/
	realm: caldelete
	deletion:
	  schedule_tag_compatibility: true
	  lock_timeout: 30s

See server/example/main.go for a complete example implementation.
*/
package server
