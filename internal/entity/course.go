package entity

// CourseRef is a course card found on a level page.
type CourseRef struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// CourseRecord is the counting outcome for one course. A record with Error set
// always carries ResourceTotal 0.
type CourseRecord struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	ResourceTotal int    `json:"resource_total"`
	Error         string `json:"error,omitempty"`
}

func (r CourseRecord) Failed() bool { return r.Error != "" }

// WorkItemCourses pairs a work item with the course records counted under it.
type WorkItemCourses struct {
	Item    WorkItem       `json:"item"`
	Courses []CourseRecord `json:"courses"`
}
