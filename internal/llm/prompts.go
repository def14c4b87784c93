package llm

const chatSystemPrompt = `You are a friendly, attentive conversation partner.
Reply naturally and concisely to the user's latest message, taking the earlier turns into account.
Answer in plain text only.`

const messageSentimentPrompt = `Classify the sentiment of the text below.

Respond with ONLY a JSON object matching this schema, with no surrounding text:
%s

Rules:
- "score" runs from 0.0 (very negative) to 1.0 (very positive); 0.5 is neutral.
- "sentiment" must be exactly one of: positive, negative, neutral.
- "explanation" is one short sentence.

Text: %q`

const conversationSentimentPrompt = `Judge the OVERALL sentiment of this conversation from the user's messages, in order.
Weigh the emotional trajectory: where the user started and where they ended up.

Respond with ONLY a JSON object matching this schema, with no surrounding text:
%s

Rules:
- "score" runs from 0.0 (very negative) to 1.0 (very positive); 0.5 is neutral.
- "sentiment" must be exactly one of: positive, negative, neutral.
- "summary" is one sentence describing the emotional direction.

User messages:
%s`
