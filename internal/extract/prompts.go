package extract

const listingPrompt = "Your task is to extract all URLs that correspond to open job postings from this page. " +
	"Exclude any links that are not actual individual job postings (e.g. general info pages, general careers links, " +
	"category filters, blog posts). Return each URL once. If job listings are located further down the page, make sure " +
	"to scroll and find them before returning an empty list. Postings may appear under sections like 'Open Positions', " +
	"'All Jobs', 'Current Openings', 'Careers', or similar headings."

const detailPrompt = "From this job posting page, extract the job title, department/team (if explicitly present), " +
	"location (if present), salary or compensation (only if explicitly shown), and the full job description as Markdown " +
	"preserving headings, bullet points, and paragraph structure. Do not infer missing values."

const inlinePrompt = "This careers page lists job openings directly on the page without linking to separate job detail " +
	"pages. Scroll to the very bottom to ensure all content is loaded. Extract every open job posting visible on this " +
	"page. For each job, extract the title, department/team (if present), location (if present), salary or compensation " +
	"(only if explicitly shown), and whatever description or details are available as Markdown. Do not infer missing values."

var nullableString = map[string]any{"type": []string{"string", "null"}}

var listingSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"job_urls": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []string{"job_urls"},
}

func jobProperties() map[string]any {
	return map[string]any{
		"title":          map[string]any{"type": "string"},
		"department_raw": nullableString,
		"location":       nullableString,
		"salary_raw":     nullableString,
		"description":    map[string]any{"type": "string"},
	}
}

var detailSchema = map[string]any{
	"type":       "object",
	"properties": jobProperties(),
	"required":   []string{"title", "description"},
}

var inlineSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"jobs": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":       "object",
				"properties": jobProperties(),
				"required":   []string{"title"},
			},
		},
	},
	"required": []string{"jobs"},
}
