// Package translate converts transcript text into the requested language.
//
// Segment splits long text at sentence boundaries into chunks no larger than
// a character budget (a lone oversized sentence stays whole). Translator
// sends each chunk to an Engine in order, sleeping a fixed throttle between
// calls, and joins the results with a single space. Any failing chunk aborts
// the whole translation.
//
// Engines: google (Cloud Translation v2), deepl, openai (chat completions),
// gemini (generative-ai-go) and echo, which returns its input unchanged.
package translate
