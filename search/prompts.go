package search

// NoDataAnswer is the fixed refusal returned when retrieval produced no
// grounding and general knowledge is disallowed.
const NoDataAnswer = "I am sorry but I am unable to answer this question given the provided data."

// localSystemPrompt grounds a single-call answer in the packed data
// tables. Placeholders: context, response type.
const localSystemPrompt = `---Role---

You are a helpful assistant responding to questions about data in the tables provided.

---Goal---

Generate a response of the target length and format that responds to the user's question, summarizing all information in the input data tables appropriate for the response length and format, and incorporating any relevant general knowledge.

If you don't know the answer, just say so. Do not make anything up.

Points supported by data should list their data references as follows:

"This is an example sentence supported by multiple data references [Data: <dataset name> (record ids); <dataset name> (record ids)]."

Do not list more than 5 record ids in a single reference. Instead, list the top 5 most relevant record ids and add "+more" to indicate that there are more.

Do not include information where the supporting evidence for it is not provided.

---Target response length and format---

%s

---Data tables---

%s
`

// driftLocalSystemPrompt is the local prompt used inside a drift session.
// The original top-level question keeps sub-question answers on course.
// Placeholders: context, global query.
const driftLocalSystemPrompt = `---Role---

You are a helpful assistant answering an intermediate question that serves a broader line of inquiry.

---Goal---

Using the data tables below, answer the question posed to you. Keep your answer relevant to the overarching research question:

%[2]s

Points supported by data should list their data references as follows:
"[Data: <dataset name> (record ids)]"
Do not list more than 5 record ids in a single reference; add "+more" when truncating.

Also suggest follow-up questions that would deepen the inquiry.

Respond with JSON of the form:
{"response": "<answer with data references>", "score": <relevance to the overarching question, 0-100>, "follow_up_queries": ["<question>", ...]}

---Data tables---

%[1]s
`

// mapSystemPrompt asks for scored key points grounded in one batch of
// community reports. Placeholder: context.
const mapSystemPrompt = `---Role---

You are a helpful assistant responding to questions about data in the tables provided.

---Goal---

Generate a response consisting of a list of key points that responds to the user's question, summarizing all relevant information in the input data tables.

You should use the data provided in the data tables below as the primary context for generating the response.
If you don't know the answer or if the input data tables do not contain sufficient information to provide an answer, just say so. Do not make anything up.

Each key point in the response should have the following element:
- Description: A comprehensive description of the point.
- Importance Score: An integer score between 0-100 that indicates how important the point is in answering the user's question. An 'I don't know' type of response should have a score of 0.

The response should be JSON formatted as follows:
{"points": [{"description": "Description of point 1", "score": score_value}, {"description": "Description of point 2", "score": score_value}]}

Points supported by data should list the relevant reports as references as follows:
"This is an example sentence supported by data references [Data: Reports (report ids)]"

Do not list more than 5 record ids in a single reference. Instead, list the top 5 most relevant record ids and add "+more" to indicate that there are more.

---Data tables---

%s
`

// reduceSystemPrompt synthesizes the final answer from ranked analyst
// points. Placeholders: report data, response type.
const reduceSystemPrompt = `---Role---

You are a helpful assistant responding to questions about a dataset by synthesizing perspectives from multiple analysts.

---Goal---

Generate a response of the target length and format that responds to the user's question, summarize all the reports from multiple analysts who focused on different parts of the dataset.

The final response should merge the analysts' reports into a comprehensive answer, preserving their data references:

"This is an example sentence supported by data references [Data: Reports (report ids)]"

Do not list more than 5 record ids in a single reference. Instead, list the top 5 most relevant record ids and add "+more" to indicate that there are more.

If you don't know the answer or if the provided reports do not contain sufficient information, just say so. Do not make anything up.

---Target response length and format---

%[2]s

---Analyst Reports---

%[1]s
`

// reduceNoKnowledgeAddendum is appended to the reduce prompt when general
// knowledge is disallowed.
const reduceNoKnowledgeAddendum = `

Do not include information where the supporting evidence for it is not provided. If the analyst reports are empty, respond exactly with: "` + NoDataAnswer + `"`

// hydePrompt expands the user query into a hypothetical answer mirroring
// the style of a sampled community report. Placeholders: report, query.
const hydePrompt = `You will be given a community report describing part of a knowledge base, followed by a question.

Write a hypothetical answer to the question in the same style, tone and length as the report. The content does not need to be true; it will be used only to retrieve similar documents.

---Report---

%s

---Question---

%s
`

// primerDecomposePrompt decomposes the query against one fold of top
// community reports. Placeholders: reports, query.
const primerDecomposePrompt = `You are a helpful agent designed to reason over a knowledge graph of entities and their community reports.

Using the community reports below, provide an intermediate answer to the question, score how well the reports cover it, and decompose the question into follow-up queries that would refine the answer.

Respond with JSON of the form:
{"intermediate_answer": "<answer grounded in the reports>", "score": <coverage score, 0-100>, "follow_up_queries": ["<question>", ...]}

---Community Reports---

%s

---Question---

%s
`
