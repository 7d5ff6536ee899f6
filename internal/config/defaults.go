package config

// DefaultURLs is the fixed page list scraped by an ingestion run.
var DefaultURLs = []string{
	"https://jindal.utdallas.edu/",
	"https://jindal.utdallas.edu/about-the-jindal-school-of-management/",
	"https://jindal.utdallas.edu/admission-requirements/",
	"https://jindal.utdallas.edu/academics/",
	"https://infosystems.utdallas.edu/ms-ba-options/",
	"https://infosystems.utdallas.edu/ms-business-analytics/",
	"https://infosystems.utdallas.edu/ms-business-analytics-cohort/",
	"https://infosystems.utdallas.edu/ms-business-analytics-cohort/data-science/",
	"https://infosystems.utdallas.edu/ms-business-analytics-cohort/scholarships/",
	"https://infosystems.utdallas.edu/ms-business-analytics-cohort/application-process/",
	"https://jindal.utdallas.edu/faculty/gaurav-shekhar/",
	"https://infosystems.utdallas.edu/ms-business-analytics-cohort/contact/",
}

// DefaultSelectors lists the main-content containers in priority order.
var DefaultSelectors = []string{
	"div.content-wrapper",
	"div.content",
	"div#content",
	"div.main-content",
	"div#main-content",
	"article",
	"main",
	"div.catalog-content",
	"div.program-content",
}
