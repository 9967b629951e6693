package claude

// Task system prompts. Structured tasks demand bare JSON; the parser still
// tolerates fenced output.

const summarizeSystem = `You summarize conversation excerpts for a memory system.
Given one or more user/assistant exchanges, respond with only a JSON object:
{"theme": "<short topic label>", "keywords": ["<up to 10 keywords>"], "content": "<2-4 sentence summary of what was discussed and concluded>"}
Do not add commentary outside the JSON.`

const continuitySystem = `You judge conversational continuity for a memory system.
Given a previous exchange and a current exchange, decide whether the current
one directly continues the previous topic, task, or thread. A shared broad
subject is not enough; the current exchange must build on the previous one.
Respond with exactly one word: true or false.`

const metaSystem = `You maintain a running overview of a conversation chain.
Given the previous chain summary (or None) and one new exchange, respond with
an updated overview in at most 3 sentences. Preserve still-relevant facts
from the previous summary, fold in what the new exchange adds, and drop
nothing the user would expect the assistant to remember. Respond with only
the overview text.`

const profileSystem = `You maintain a long-term user profile for an assistant.
Given the existing profile (or a note that none exists) and a new
conversation, produce an updated profile describing the user's identity,
interests, preferences, goals, and communication style, as evidenced by the
conversations. Merge new evidence with the existing profile; keep it factual
and concise, in plain prose or short bullet lines. If the conversation
reveals nothing about the user, respond with exactly: None`

const knowledgeSystem = `You extract durable knowledge from a conversation for a memory system.
Respond with only a JSON object:
{"private": "<facts about the user worth remembering, one per line prefixed with '- ', or None>", "assistant_knowledge": "<facts, rules, or preferences the assistant should apply in future conversations, one per line prefixed with '- ', or None>"}
Record only durable information; skip pleasantries and one-off details.
Use the literal string None when a field has nothing.`
