// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry integration with rich attributes
// for observing the incident resolution pipeline.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for mend telemetry.
// These follow OpenTelemetry naming conventions where applicable.
const (
	// Incident attributes
	AttrIncidentID       = "mend.incident.id"
	AttrIncidentCategory = "mend.incident.category"
	AttrIncidentPriority = "mend.incident.priority"
	AttrIncidentBlast    = "mend.incident.blast_radius"

	// Loop attributes
	AttrLoopIteration  = "mend.loop.iteration"
	AttrLoopMaxIter    = "mend.loop.max_iterations"
	AttrLoopComposite  = "mend.loop.composite"
	AttrLoopThreshold  = "mend.loop.threshold"
	AttrLoopOutcome    = "mend.loop.outcome"
	AttrLoopState      = "mend.loop.state"

	// Stage attributes
	AttrStageName  = "mend.stage.name"
	AttrStageModel = "mend.stage.model"
	AttrRunID      = "mend.run_id"

	// Memory attributes
	AttrMemoryBackend   = "mend.memory.backend"
	AttrMemoryRetrieved = "mend.memory.retrieved_count"
	AttrMemoryStored    = "mend.memory.stored"

	// Tool attributes
	AttrToolName       = "mend.tool.name"
	AttrToolServer     = "mend.tool.server"
	AttrToolDurationMs = "mend.tool.duration_ms"
	AttrToolSuccess    = "mend.tool.success"
	AttrToolsCount     = "mend.tools.count"
	AttrToolsNames     = "mend.tools.names"

	// LLM attributes
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMMessages     = "mend.llm.message_count"
	AttrLLMToolCalls    = "mend.llm.tool_call_count"
	AttrLLMDurationMs   = "mend.llm.duration_ms"
	AttrLLMFinishReason = "gen_ai.response.finish_reason"

	// Task attributes
	AttrTaskID        = "mend.task.id"
	AttrTaskStatement = "mend.task.statement"
)

// IncidentAttributes builds span attributes describing an incident under
// resolution.
func IncidentAttributes(id, category, priority, blastRadius string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrIncidentID, id),
		attribute.String(AttrIncidentCategory, category),
		attribute.String(AttrIncidentPriority, priority),
		attribute.String(AttrIncidentBlast, blastRadius),
	}
}

// LoopAttributes describes one critic pass of the quality loop.
func LoopAttributes(iteration, maxIterations int, composite, threshold float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrLoopIteration, iteration),
		attribute.Int(AttrLoopMaxIter, maxIterations),
		attribute.Float64(AttrLoopComposite, composite),
		attribute.Float64(AttrLoopThreshold, threshold),
	}
}

// StageAttributes describes a pipeline stage invocation.
func StageAttributes(stage, model, runID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrStageName, stage),
		attribute.String(AttrStageModel, model),
		attribute.String(AttrRunID, runID),
	}
}

// MemoryAttributes describes an experience store interaction.
func MemoryAttributes(backend string, retrievedCount int, stored bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrMemoryBackend, backend),
		attribute.Int(AttrMemoryRetrieved, retrievedCount),
		attribute.Bool(AttrMemoryStored, stored),
	}
}

// ToolCallAttributes describes a single MCP tool invocation.
func ToolCallAttributes(name, server string, durationMs float64, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.String(AttrToolServer, server),
		attribute.Float64(AttrToolDurationMs, durationMs),
		attribute.Bool(AttrToolSuccess, success),
	}
}

// ToolsetAttributes describes the tools available to a stage.
func ToolsetAttributes(count int, names []string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrToolsCount, count),
		attribute.StringSlice(AttrToolsNames, names),
	}
}

// LLMAttributes describes a model request.
func LLMAttributes(model, provider string, messageCount, toolCallCount int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
		attribute.String(AttrLLMProvider, provider),
		attribute.Int(AttrLLMMessages, messageCount),
		attribute.Int(AttrLLMToolCalls, toolCallCount),
	}
}

// TaskAttributes describes the problem statement handed to the resolver.
// The statement is truncated to keep span payloads bounded.
func TaskAttributes(taskID, statement string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrTaskID, taskID),
		attribute.String(AttrTaskStatement, Truncate(statement, 200)),
	}
}

// Truncate shortens s to maxLen characters, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
