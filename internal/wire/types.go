package wire

// Client → gateway command types (spec.md §4.8, §6).
const (
	CmdPing              = "ping"
	CmdStatus             = "status"
	CmdChat               = "chat"
	CmdSpawn              = "spawn"
	CmdStop               = "stop"
	CmdScale              = "scale"
	CmdSetModel           = "set_model"
	CmdListProcesses      = "list_processes"
	CmdListProviders      = "list_providers"
	CmdListModels         = "list_models"
	CmdSubscribe          = "subscribe"
	CmdUnsubscribe        = "unsubscribe"
	CmdListSubscriptions  = "list_subscriptions"
	CmdGetLogs            = "get_logs"

	// Orchestration-forward set — routed verbatim to a selected worker.
	CmdNewSession             = "new_session"
	CmdSetSession             = "set_session"
	CmdGetSession             = "get_session"
	CmdSetSystemPrompt        = "set_system_prompt"
	CmdSetAppendSystemPrompt  = "set_append_system_prompt"
	CmdGetSystemPrompt        = "get_system_prompt"
	CmdSetAllowedTools        = "set_allowed_tools"
	CmdGetAllowedTools        = "get_allowed_tools"
	CmdGetAgentState          = "get_agent_state"
)

// orchestrationForward lists the commands routed verbatim to a worker by
// processId or provider, with the reply traveling back via Fanout affinity.
var orchestrationForward = map[string]bool{
	CmdNewSession:            true,
	CmdSetSession:            true,
	CmdGetSession:            true,
	CmdSetSystemPrompt:       true,
	CmdSetAppendSystemPrompt: true,
	CmdGetSystemPrompt:       true,
	CmdSetAllowedTools:       true,
	CmdGetAllowedTools:       true,
	CmdGetAgentState:         true,
	CmdSetModel:              true,
}

// IsOrchestrationForward reports whether typ belongs to the
// orchestration-forward command family.
func IsOrchestrationForward(typ string) bool {
	return orchestrationForward[typ]
}

// Gateway → client reply/event types (spec.md §6).
const (
	EvtConnected       = "connected"
	EvtPong            = "pong"
	EvtStatus          = "status"
	EvtProcesses       = "processes"
	EvtProviders       = "providers"
	EvtModels          = "models"
	EvtSpawning        = "spawning"
	EvtSpawned         = "spawned"
	EvtStopped         = "stopped"
	EvtScaled          = "scaled"
	EvtSubscribed      = "subscribed"
	EvtUnsubscribed    = "unsubscribed"
	EvtSubscriptions   = "subscriptions"
	EvtLogs            = "logs"
	EvtError           = "error"
	EvtStream          = "stream"
)

// Worker-originated event types passed through chat traffic (spec.md §6).
const (
	EvtThinking     = "thinking"
	EvtStreaming    = "streaming"
	EvtContentDelta = "content_delta"
	EvtContent      = "content"
	EvtThought      = "thought"
	EvtToolCall     = "tool_call"
	EvtToolResult   = "tool_result"
	EvtDone         = "done"
	EvtError2       = "error"
)

// IsTerminal reports whether a worker event type ends a chat request and
// therefore clears client affinity (spec.md §4.9, Invariant 4).
func IsTerminal(eventType string) bool {
	return eventType == EvtDone || eventType == EvtError
}

// SubscriptionKind distinguishes the two subscription index families.
type SubscriptionKind string

const (
	SubProcess  SubscriptionKind = "process"
	SubProvider SubscriptionKind = "provider"
)
