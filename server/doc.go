/*
Package server expands recurring calendar events into concrete instances and
keeps those instances consistent with event and exception writes.

# Basic Usage

A Provider sits on top of a storage.Storage. The in-memory store is enough for
tests and small tools:

	p, err := server.New(memory.New(), server.WithLocalTimeZone(loc))
	if err != nil {
		log.Fatal(err)
	}
	defer p.Close()

	cal := &storage.Calendar{AccountName: "alice@example.com", Name: "Personal"}
	if err := p.CreateCalendar(ctx, cal); err != nil {
		log.Fatal(err)
	}

	_, err = p.InsertEvent(ctx, &storage.Event{
		CalendarID: cal.ID,
		Title:      "Standup",
		TimeZone:   "Europe/Berlin",
		DTStart:    start,
		Duration:   "P900S",
		RRule:      "FREQ=WEEKLY;BYDAY=MO,WE,FR;WKST=MO",
	})

	rows, err := p.Instances(ctx, server.InstanceQuery{Begin: from, End: to})

Instance queries expand each calendar lazily. Every calendar keeps one tracked
range; a query outside it grows the range and re-expands, a query inside it
reads the stored instances. Writes re-expand the tracked range of the affected
calendar before returning.

# Exceptions

CreateException overrides a single occurrence of a recurring event. Without a
rule the occurrence is moved, retitled or canceled. With a rule the occurrence
and every later one are replaced by a new series; at the first occurrence the
series itself is rewritten.

Sync adapters write exceptions in whatever order they arrive. An exception
naming its series by OriginalSyncID is linked as soon as a series with that
SyncID is written to the same calendar.

# Callers

Requests without a principal in the context are treated as local
applications: events get a UID, are marked dirty, and deleting a synced event
only marks it deleted. A principal with SyncAdapter set writes rows as they
are and may only touch calendars of its own account:

	ctx = auth.WithPrincipal(ctx, &auth.Principal{
		ID:          "sync",
		Account:     "alice@example.com",
		SyncAdapter: true,
	})

# Configuration

NewFromConfig builds a Provider from a YAML file loaded with LoadConfig:

	local_timezone: Europe/Berlin
	default_window: 720h
	engine:
	  cache_enabled: true
	  max_occurrences_per_event: 5000
	adapters:
	  - username: sync
	    password: secret
	    account: alice@example.com

# Custom Storage Backend

Implement storage.Storage to persist calendars, events, child rows, instances
and tracked ranges elsewhere. Filters describe column equality in the same way
an SQL WHERE clause would, and every method must be safe for concurrent use.
Return *storage.Error with ErrNotFound for missing rows so that callers can
rely on storage.IsNotFound.
*/
package server
