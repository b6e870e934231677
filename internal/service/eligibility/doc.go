// Package eligibility computes exactly which addresses may receive a bulk
// email campaign.
//
// The pipeline is a sequence of strictly narrowing stages: precondition and
// ownership checks, list membership resolution, batched email lookup, the
// global subscription filter, the category unsubscribe filter, the no-reply
// pattern filter, case-insensitive deduplication, and the send-quota check.
// It reads mirror and quota state and mutates nothing, so rerunning it
// against unchanged tables yields an identical recipient set. Skips
// (deferred, ownership, precondition, quota) are reported as structured
// outcomes, not errors; only system faults surface as errors.
package eligibility
