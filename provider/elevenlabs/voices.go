package elevenlabs

import "github.com/ineyio/voicepool"

// DefaultVoiceID is used when a request names no voice.
const DefaultVoiceID = "TX3LPaxmHKxFdv7VOQHJ"

var catalog = []voicepool.Voice{
	{ID: DefaultVoiceID, Name: "Helmut", Language: "de", Description: "Deep, powerful trailer voice",
		PreviewText: "Guten Tag, ich bin Helmut. Meine Stimme ist tief und kraftvoll, perfekt für epische Erzählungen und dramatische Inhalte auf Deutsch."},
	{ID: "iP95p4xoKVk53GoZ742B", Name: "Chris", Language: "de", Description: "Casual and friendly",
		PreviewText: "Hallo, ich heiße Chris. Ich spreche Deutsch wie ein echter Muttersprachler, entspannt und natürlich für Videos und Podcasts."},
	{ID: "qJClEJyMLJV5sMjVazal", Name: "Otto", Language: "de", Description: "Clear, suited to education",
		PreviewText: "Guten Tag, ich bin Otto. Meine klare und intelligente deutsche Stimme ist perfekt für Bildungsinhalte, Erklärvideos und wissenschaftliche Themen."},
	{ID: "nPczCjzI2devNBz1zQrb", Name: "Brian", Language: "de", Description: "Professional business voice",
		PreviewText: "Guten Tag, ich bin Brian. Meine klare deutsche Aussprache eignet sich perfekt für geschäftliche Präsentationen und Schulungen."},
	{ID: "XrExE9yKIg1WjnnlVkGX", Name: "Matilda", Language: "de", Description: "Warm audiobook narrator",
		PreviewText: "Hallo, ich bin Matilda. Meine warme deutsche Stimme macht Geschichten lebendig und fesselt Ihr Publikum von Anfang bis Ende."},
	{ID: "XB0fDUnXU5powFXDhCwa", Name: "Charlotte", Language: "de", Description: "Elegant and refined",
		PreviewText: "Guten Tag, ich heiße Charlotte. Ich spreche elegant und klar auf Deutsch, ideal für gehobene und kulturelle Inhalte."},
	{ID: "pFZP5JQG7iQjIQuC4Bku", Name: "Lily", Language: "de", Description: "Young and energetic",
		PreviewText: "Hi, ich bin Lily. Meine junge deutsche Stimme passt super zu Social Media, Vlogs und modernen Erklärvideos."},
	{ID: "onwK4e9ZLuTAKqWW03F9", Name: "Daniel", Language: "de", Description: "Authoritative news voice",
		PreviewText: "Guten Tag, ich bin Daniel. Meine klare und kraftvolle deutsche Stimme eignet sich perfekt für Nachrichten und offizielle Ankündigungen."},
	{ID: "JBFqnCBsd6RMkjVDRZzb", Name: "George", Language: "de", Description: "Warm and calm",
		PreviewText: "Guten Tag, ich bin George. Meine warme und beruhigende deutsche Stimme ist ideal für entspannende Inhalte und Hörbücher."},
	{ID: "cgSgspJ2msm6clMCkdW9", Name: "Jessica", Language: "de", Description: "Expressive e-learning voice",
		PreviewText: "Hallo, ich bin Jessica. Meine professionelle deutsche Stimme eignet sich hervorragend für Business-Präsentationen und E-Learning."},
}

// Voices returns the supported voice catalog.
func (p *Provider) Voices() []voicepool.Voice {
	out := make([]voicepool.Voice, len(catalog))
	copy(out, catalog)
	return out
}
