// Package core provides the business logic for synthetic data generation
// requests.
//
// The package holds the domain logic independent of any UI or transport
// layer. The web server and the synthgen CLI both drive it through a
// [Workflow].
//
// # Architecture
//
//   - Registry: the model roster. Each [ModelProfile] names its input modality
//     (a text theme or a CSV file) and the row range it accepts.
//   - Validation: themes, row counts, download names and seed CSV files are
//     checked before anything leaves the process.
//   - Requests: a validated form becomes a [JSONRequest] or a
//     [MultipartRequest] depending on the model's modality.
//   - Preview: returned CSV text is parsed into a bounded [PreviewTable].
//   - Workflow: one generation at a time per session, with a deadline,
//     an optional download and an optional history record.
//   - Limiter: caps concurrent calls to the generation service across
//     sessions.
//
// # Workflow
//
//  1. The caller selects a model with [Workflow.SelectModel]; switching models
//     clears the inputs.
//  2. [Workflow.Submit] validates the form. Validation failures are returned
//     without contacting the service.
//  3. The request is sent through the [Generator] under the configured
//     timeout. Only the deadline produces a cancelled outcome.
//  4. On success the result is rendered and, when requested, handed to the
//     [Saver] under the sanitized download name.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each category has a code for support reference:
//
//   - VAL001-VAL004: theme and download name validation
//   - FILE001-FILE004: seed file problems
//   - GEN001-GEN006: generation failures, timeouts and missing downloads
//   - RATE001: too many requests
package core
