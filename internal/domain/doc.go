// Package domain models the community events desk: events gathered by
// scrapers or editors, and the location and organizer libraries they refer to.
//
// # Records
//
// Events are stored as JSON objects whose shape varies by scraper. [Event]
// decodes the keys the desk works with into typed fields and keeps every other
// key verbatim, so rewriting an event file never drops data. A known key whose
// JSON type is wrong (for example a numeric title) is kept raw and reported
// through [Event.Malformed] so the validator can flag it.
//
// [Location] and [Organizer] share [Entity]: name, aliases, contact details,
// a verified flag, a usage count and timestamps. Locations add a position,
// organizers an email.
//
// # Identity
//
// Library keys are derived from names:
//
//	"Theater Hof"                         → loc_theater_hof
//	"Kulturzentrum Vereinigte Brauereien" → loc_kulturzentrum_verein_<md5[:8]>
//
// Slugs longer than 30 characters are cut to 20 and suffixed with the first
// eight hex digits of md5(name + lat + lon). The generator is pure and does
// not know about collisions; the entity store appends _2, _3, ... when a
// derived key is taken. See [GenerateLocationID].
//
// # References and overrides
//
// An event may embed a copy of its venue (location), reference a library
// record (location_id), or both. A location_override object holds per-event
// changes on top of a reference. [ClassifyLocation] and [ClassifyOrganizer]
// map each event onto one of four [OverridePattern] values. Organizers are
// optional, so an event without one is never flagged for migration.
package domain
