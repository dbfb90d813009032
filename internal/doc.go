// Package internal contains the core implementation packages for ombra.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the ombra engine and CLI.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - lexer: Template tokenization into text, output and tag tokens
//   - parser: Tag-set driven parsing, argument binding and node rendering
//   - renderctx: Layered variable resolution with expression evaluation
//   - htmlx: Root marker splicing and subtree attribute annotation
//   - scopecss: Scope id derivation and stylesheet rule rewriting
//   - deps: Dependency aggregation, dedup and page postprocessing
//   - loader: Template file resolution, reading and change watching
//   - config: Configuration management with validation
//   - logging: Structured logging shared by the engine and loader
//   - version: Build metadata for the CLI
//
// # Inter-Package Communication
//
// Packages communicate through well-defined seams:
//
//   - The engine drives parser with its registered tag set and feeds
//     rendered fragments through htmlx before they reach the page
//   - loader resolves template names for the engine and reports file
//     changes so compiled templates can be invalidated
//   - deps collects what components declare while rendering and rewrites
//     the finished page once at the end
//   - scopecss never sees components; the engine hands it stylesheet
//     text and scope ids
//
// For detailed documentation, see the individual package documentation.
package internal
