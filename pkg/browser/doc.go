// Package browser owns the browser sessions scout runs searches and fetches in.
//
// # Architecture
//
// The package is built around four concepts:
//
//  1. Driver: the controllable browser (Browser, BrowserContext, Page). PlaywrightDriver
//     is the production implementation; browsertest provides a scriptable fake.
//  2. Pool: browser processes with checkout/return semantics, bounded by MaxBrowsers.
//  3. SessionManager: acquires an isolated context per caller, applies saved state and
//     the fingerprint, and releases it (persisting state) on every exit path.
//  4. SessionStore: the opaque state blob and its fingerprint sidecar on disk.
//
// # Session Lifecycle
//
//  1. Acquire: check out a browser, load state from StateFile, create a context
//  2. Use: Session.WithPage opens one scoped page at a time
//  3. Release: save state and fingerprint if SaveState is set, close the context,
//     return the browser to the pool
//
// The state file is not locked. Two processes writing the same StateFile
// concurrently will race; use distinct files per concurrent caller.
package browser
