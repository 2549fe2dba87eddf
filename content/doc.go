// Package content supplies the static documents that tools embed in their
// results, such as the HTML widget returned by the render tool.
//
// Providers come in two flavors: FS serves from any fs.FS (the embedded
// defaults use this) and Dir serves from an OS directory, watching it with
// fsnotify so edits show up without a restart. What happens when a tool asks
// for an asset that does not exist is decided by Policy: the placeholder
// policy substitutes a small stand-in document, the required policy makes the
// server refuse to start.
package content
