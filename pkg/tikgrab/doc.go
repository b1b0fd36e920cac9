// Package tikgrab provides a reusable library for downloading TikTok videos
// through third-party extractor sites, with pluggable repository and blob
// storage backends.
//
// It exposes a single Service interface that orchestrates URL resolution and
// parsing, extractor selection, video fetching, cached re-serving, and cache
// expiry. Implementations of repositories (e.g., memory, SQLite, Postgres)
// and blob stores (e.g., memory, filesystem, S3) are provided under
// subpackages, as are the individual extractors.
//
// Caching Model
//
// Every successfully downloaded video is written to blob storage under a
// deterministic object key and recorded in the repository. The record doubles
// as download history and cache index: repeat requests for the same post are
// served from storage, bump the download counter, and slide the expiry
// window. A periodic purge removes records whose expiry has passed together
// with their stored objects.
package tikgrab
