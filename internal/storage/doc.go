// Package storage implements the key-addressed blob backends that hold proxy
// previews, exports, and archived exports.
//
// Backends expose Put, Open, Stat, Move, and Delete over slash-separated keys.
// The local backend writes through a temporary file and renames into place;
// the S3 backend uses the AWS SDK multipart uploader; the MinIO backend talks
// to any S3-compatible endpoint. Transfer streams an object between backends,
// optionally compressing it with zstd or lz4 on the way into archive storage.
//
// Missing keys surface as services.ErrNotFound; every other backend failure
// is tagged services.ErrStorage.
package storage
