package pages

// Project is one fundraising or volunteering initiative.
type Project struct {
	Title       string
	Description string
	Category    string
	Status      string
	Tags        []string
	Funding     string
	URL         string
}

// Active reports whether the project is currently running.
func (p Project) Active() bool {
	return p.Status == "Active"
}

// Projects lists the initiatives shown on the projects page.
func Projects() []Project {
	return []Project{
		{
			Title:       "Vineyard Restoration",
			Description: "Restoring a traditional vineyard with indigenous Commandaria grape varieties.",
			Category:    "Agricultural & Structural Restoration",
			Status:      "Active",
			Tags:        []string{"Viticulture", "Biodynamic", "Heritage"},
			Funding:     "Find open volunteering events on our Open Collective.",
			URL:         OpenCollectiveURL,
		},
		{
			Title:       "Farming Machinery Fundraiser",
			Description: "Raising funds for Nysa.earth tractor with backhoe and frontloader attachments.",
			Category:    "Fundraising",
			Status:      "Active",
			Tags:        []string{"Farming", "Machinery", "Viticulture", "Fundraiser"},
			Funding:     "Donate to our fundraiser on Open Collective.",
			URL:         OpenCollectiveURL + "/projects/farming-machinery-fundraiser",
		},
	}
}

// Photo is a captioned image on the story page.
type Photo struct {
	Src     string
	Alt     string
	Caption string
}

// Comparison pairs a before and after photo of the same spot.
type Comparison struct {
	Title  string
	Before Photo
	After  Photo
}

type storyPageData struct {
	Comparisons []Comparison
	Restoration []Photo
	Heritage    []Photo
	Community   []Photo
}

const storyImages = "/static/images/story/"

func photo(name, alt, caption string) Photo {
	return Photo{Src: storyImages + name, Alt: alt, Caption: caption}
}

func storyData() storyPageData {
	return storyPageData{
		Comparisons: []Comparison{
			{
				Title: "Vineyard clearing",
				Before: photo("vineyard-before.svg", "Overgrown vineyard before restoration",
					"Overgrown vineyard with vegetation blocking access to vines and preventing healthy growth"),
				After: photo("vineyard-after.svg", "Cleared vineyard after restoration",
					"Cleared vineyard with restored access paths and healthy vine maintenance"),
			},
			{
				Title: "Stone terrace walls",
				Before: photo("wall-before.svg", "Stone wall needing restoration",
					"Traditional stone terrace wall showing the effects of time and requiring restoration work"),
				After: photo("wall-after.svg", "Stone wall being restored",
					"Partially restored stone terrace wall maintaining traditional craftsmanship techniques"),
			},
		},
		Restoration: []Photo{
			photo("wall-collapsed.svg", "Partially collapsed traditional stone wall",
				"These partially collapsed walls were meant to functionally serve the vineyard health and prevent terrace collapse and soil erosion"),
			photo("wall-work.svg", "Stone wall restoration work in progress",
				"Active restoration work maintaining the balance between tradition, functionality, and beauty"),
			photo("wall-restored.svg", "Partially restored stone wall",
				"Partially restored stone wall, with maintenance these hand-built walls will stand for decades to come"),
		},
		Heritage: []Photo{
			photo("path-overgrown.svg", "Vegetation overgrowth and debris that blocked vineyard pathways",
				"Vegetation overgrowth and debris that blocked vineyard pathways and covered terrace stone wall"),
			photo("path-cleared.svg", "Cleared vineyard pathway",
				"Cleared Commandaria vineyard pathway"),
			photo("path-rebuilt.svg", "Previously overgrown and collapsed stone wall cleared and rebuilt",
				"Previously overgrown pathway and partially collapsed stone wall cleared and rebuilt"),
		},
		Community: []Photo{
			photo("path-weeded.svg", "Vegetation overgrowth removed from vineyard pathway",
				"Vegetation overgrowth removed from vineyard pathway"),
			photo("vineyard-overgrown.svg", "Overgrown Commandaria vineyard needing restoration",
				"Overgrown Commandaria vineyard needing clearing, soil maintenance and re-cultivation"),
		},
	}
}
