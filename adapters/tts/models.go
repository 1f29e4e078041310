package tts

// Cartesia model identifiers.
const (
	CartesiaModelSonic        = "sonic"
	CartesiaModelSonicEnglish = "sonic-english"

	// CartesiaDefaultVoiceID is a neutral English voice.
	CartesiaDefaultVoiceID = "794f9389-aac1-45b6-b726-9d9369183238"
)

// Voice control speeds accepted by Cartesia.
const (
	VoiceSpeedSlowest = "slowest"
	VoiceSpeedSlow    = "slow"
	VoiceSpeedNormal  = "normal"
	VoiceSpeedFast    = "fast"
	VoiceSpeedFastest = "fastest"
)

// Voice control emotions accepted by Cartesia.
const (
	VoiceEmotionAnger     = "anger:high"
	VoiceEmotionPositive  = "positivity:high"
	VoiceEmotionSurprise  = "surprise:high"
	VoiceEmotionSadness   = "sadness:high"
	VoiceEmotionCuriosity = "curiosity:high"
)
