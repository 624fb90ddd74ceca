package summarizer

// DefaultSystemInstruction steers the model toward a compact digest. It is
// used when no system_instruction is configured.
const DefaultSystemInstruction = `You are a chat analyst. Your task is to produce a concise summary of messages from a group chat. Include: 1) the main discussion topics, 2) key conclusions or decisions, 3) the most active discussions. Format the answer in Markdown.`

// summaryPromptPrefix precedes the transcript in the user turn.
const summaryPromptPrefix = "Analyze the following group chat messages and produce a concise summary:\n\n"
