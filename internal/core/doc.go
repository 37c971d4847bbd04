// Package core ties fetching, inference and caching together behind the
// [Service] used by both the HTTP server and the CLI.
//
// # Load Flow
//
//  1. The caller's [Source] is normalized (method, default delimiter) and
//     fingerprinted.
//  2. A cached table for the fingerprint is returned immediately.
//  3. Otherwise one load per fingerprint runs at a time: a [LoadLimiter]
//     slot is acquired, the body is fetched and inferred, and the result
//     is cached.
//
// Schemas, row batches and exports are all views over that loaded table.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FETCH001-FETCH004: Upstream retrieval (unreachable, size, URL, method)
//   - AUTH001-AUTH002: Credentials (upstream token, API key)
//   - CSV001-CSV003: Text that could not become a table
//   - LOAD001-LOAD003: Busy, cancelled, timed out
//   - CACHE001, DB001-DB004, RATE001
package core
