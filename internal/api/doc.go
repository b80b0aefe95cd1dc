// Package api defines the wire-format types of the cutline HTTP API and a
// client for it. The daemon serves these types; the cutline CLI consumes
// them through Client.
//
// # Key Types
//
// Project, EditEntry, Export and Job are transport views of catalog and
// render queue records. DaemonStatus aggregates runtime information.
// gc.Candidate and gc.Report are passed through unchanged.
//
// # Converters
//
// FromProject, FromEdit, FromExport and FromJob translate internal models.
//
// # Errors
//
// Error responses carry a machine-readable kind. Client maps the kind back
// to the matching services marker so callers can use errors.Is on either
// side of the wire.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds and
// are omitted when unset.
package api
