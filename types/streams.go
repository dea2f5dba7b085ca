package types

// Stream names for the pipeline. The bus client prepends its key prefix,
// so the wire-level keys are e.g. "hearth:audio.inbound".
const (
	StreamAudioInbound    = "audio.inbound"
	StreamAudioSegments   = "audio.segments"
	StreamTranscripts     = "text.transcripts"
	StreamLLMRequests     = "llm.requests"
	StreamLLMResponses    = "llm.responses"
	StreamTTSRequests     = "tts.requests"
	StreamAudioOutbound   = "audio.outbound"
	StreamCaregiverEvents = "events.caregiver"
)

// Consumer group names, one per stage. Each group owns its cursor on
// exactly one inbound stream, except the orchestrator which reads both
// transcripts and LLM responses under separate groups.
const (
	GroupVAD                   = "vad"
	GroupASR                   = "asr"
	GroupOrchestrator          = "orchestrator"
	GroupOrchestratorResponses = "orchestrator-responses"
	GroupLLM                   = "llm"
	GroupTTS                   = "tts"
	GroupGateway               = "gateway"
)
