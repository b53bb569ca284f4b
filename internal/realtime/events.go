package realtime

// Broadcast event names carried in the WSMessage envelope.
const (
	EventSessionStarted    = "session_started"
	EventSessionEnded      = "session_ended"
	EventAssetShared       = "asset_shared"
	EventQuestionSubmitted = "question_submitted"
	EventQuestionAnswered  = "question_answered"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"

	// EventSessionState is the snapshot pushed to a connection right after it
	// registers (including after a reconnect): current status, roster and the
	// currently shared asset. It replaces replay of missed events.
	EventSessionState = "session_state"

	// EventError is sent to the originating connection when its inbound
	// event is rejected; it is never fanned out.
	EventError = "error"
)

// Inbound event names accepted from clients.
const (
	InboundShareAsset     = "share_asset"
	InboundSubmitQuestion = "submit_question"
	InboundAnswerQuestion = "answer_question"
	InboundStartSession   = "start_session"
	InboundEndSession     = "end_session"
)
