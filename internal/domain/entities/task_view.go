package entities

import "sort"

// TaskView is a normalized task as the UI consumes it
type TaskView struct {
	ID            int64                  `json:"id"`
	Text          string                 `json:"text"`
	Description   string                 `json:"description"`
	Done          bool                   `json:"done"`
	Priority      int64                  `json:"priority"`
	Labels        []Label                `json:"labels"`
	Assignees     []User                 `json:"assignees"`
	DueDate       Instant                `json:"dueDate"`
	StartDate     Instant                `json:"startDate"`
	EndDate       Instant                `json:"endDate"`
	RepeatAfter   RepeatAfter            `json:"repeatAfter"`
	ReminderDates []*Instant             `json:"reminderDates"`
	ParentTaskID  int64                  `json:"parentTaskID"`
	HexColor      string                 `json:"hexColor"`
	PercentDone   float64                `json:"percentDone"`
	RelatedTasks  map[string][]*TaskView `json:"related_tasks"`
	Attachments   []Attachment           `json:"attachments"`
	CreatedBy     User                   `json:"createdBy"`
	Created       Instant                `json:"created"`
	Updated       Instant                `json:"updated"`
	ListID        int64                  `json:"listID"`
}

// TaskDefaults returns the values used for keys missing from a raw task record.
func TaskDefaults() Record {
	return Record{
		"id":            0,
		"text":          "",
		"description":   "",
		"done":          false,
		"priority":      0,
		"labels":        []interface{}{},
		"assignees":     []interface{}{},
		"dueDate":       0,
		"startDate":     0,
		"endDate":       0,
		"repeatAfter":   0,
		"reminderDates": []interface{}{},
		"parentTaskID":  0,
		"hexColor":      "",
		"percentDone":   0,
		"related_tasks": Record{},
		"attachments":   []interface{}{},
		"createdBy":     Record{},
		"created":       nil,
		"updated":       nil,
		"listID":        0,
	}
}

// NewTaskView normalizes a raw task record. It has no side effects; scheduling
// reminder notifications is a separate step.
func NewTaskView(raw Record) *TaskView {
	r := raw.withDefaults(TaskDefaults())

	t := &TaskView{
		ID:           r.Int64("id"),
		Text:         r.String("text"),
		Description:  r.String("description"),
		Done:         r.Bool("done"),
		Priority:     r.Int64("priority"),
		DueDate:      r.Instant("dueDate"),
		StartDate:    r.Instant("startDate"),
		EndDate:      r.Instant("endDate"),
		RepeatAfter:  ParseRepeatAfter(r.Float64("repeatAfter")),
		ParentTaskID: r.Int64("parentTaskID"),
		HexColor:     NormalizeHexColor(r.String("hexColor"), DefaultTaskColor),
		PercentDone:  r.Float64("percentDone"),
		CreatedBy:    NewUser(r.Record("createdBy")),
		Created:      r.Instant("created"),
		Updated:      r.Instant("updated"),
		ListID:       r.Int64("listID"),
	}

	reminders := r.Slice("reminderDates")
	t.ReminderDates = make([]*Instant, 0, len(reminders)+1)
	for _, d := range reminders {
		in := ParseInstant(d)
		t.ReminderDates = append(t.ReminderDates, &in)
	}
	// nil is the "add a new reminder" slot
	t.ReminderDates = append(t.ReminderDates, nil)

	t.Assignees = make([]User, 0)
	for _, a := range r.Slice("assignees") {
		t.Assignees = append(t.Assignees, NewUser(toRecord(a)))
	}

	t.Labels = make([]Label, 0)
	for _, l := range r.Slice("labels") {
		t.Labels = append(t.Labels, NewLabel(toRecord(l)))
	}

	t.RelatedTasks = make(map[string][]*TaskView)
	for kind, tasks := range r.Record("related_tasks") {
		items := toSlice(tasks)
		related := make([]*TaskView, 0, len(items))
		for _, item := range items {
			related = append(related, NewTaskView(toRecord(item)))
		}
		t.RelatedTasks[kind] = related
	}

	t.Attachments = make([]Attachment, 0)
	for _, a := range r.Slice("attachments") {
		t.Attachments = append(t.Attachments, NewAttachment(toRecord(a)))
	}

	return t
}

// Reminders returns the reminder dates without the trailing placeholder.
func (t *TaskView) Reminders() []Instant {
	out := make([]Instant, 0, len(t.ReminderDates))
	for _, d := range t.ReminderDates {
		if d != nil {
			out = append(out, *d)
		}
	}
	return out
}

// HasDarkColor reports whether the task color is dark.
func (t *TaskView) HasDarkColor() bool {
	return HasDarkColor(t.HexColor)
}

// Subtasks returns the related tasks of kind "subtask".
func (t *TaskView) Subtasks() []*TaskView {
	return t.RelatedTasks[RelationSubtask]
}

// Flatten returns t and every task reachable through related tasks, one view
// per task id, depth first with relation kinds in sorted order. A task that
// occurs more than once is returned as its first occurrence carrying the
// reminder dates of every occurrence. The views in the tree are not modified.
func (t *TaskView) Flatten() []*TaskView {
	var (
		views  []*TaskView
		index  = make(map[int64]int)
		merged = make(map[int64]bool)
	)

	var visit func(v *TaskView)
	visit = func(v *TaskView) {
		if v == nil {
			return
		}

		if i, ok := index[v.ID]; ok {
			if !merged[v.ID] {
				c := *views[i]
				views[i] = &c
				merged[v.ID] = true
			}
			views[i].addReminders(v.Reminders())
		} else {
			index[v.ID] = len(views)
			views = append(views, v)
		}

		kinds := make([]string, 0, len(v.RelatedTasks))
		for kind := range v.RelatedTasks {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)

		for _, kind := range kinds {
			for _, related := range v.RelatedTasks[kind] {
				visit(related)
			}
		}
	}

	visit(t)
	return views
}

// addReminders appends the dates t does not have yet and replaces
// ReminderDates with a fresh slice ending in the placeholder.
func (t *TaskView) addReminders(dates []Instant) {
	all := t.Reminders()
	for _, d := range dates {
		if !containsInstant(all, d) {
			all = append(all, d)
		}
	}

	t.ReminderDates = make([]*Instant, 0, len(all)+1)
	for i := range all {
		t.ReminderDates = append(t.ReminderDates, &all[i])
	}
	t.ReminderDates = append(t.ReminderDates, nil)
}

func containsInstant(dates []Instant, d Instant) bool {
	for _, x := range dates {
		if x.Valid() == d.Valid() && (!d.Valid() || x.Time().Equal(d.Time())) {
			return true
		}
	}
	return false
}

// Record converts the view back into the raw form the server accepts.
func (t *TaskView) Record() Record {
	reminders := make([]interface{}, 0, len(t.ReminderDates))
	for _, d := range t.Reminders() {
		reminders = append(reminders, d.recordValue())
	}

	labels := make([]interface{}, 0, len(t.Labels))
	for _, l := range t.Labels {
		labels = append(labels, l.Record())
	}

	assignees := make([]interface{}, 0, len(t.Assignees))
	for _, a := range t.Assignees {
		assignees = append(assignees, a.Record())
	}

	attachments := make([]interface{}, 0, len(t.Attachments))
	for _, a := range t.Attachments {
		attachments = append(attachments, a.Record())
	}

	related := make(Record, len(t.RelatedTasks))
	for kind, tasks := range t.RelatedTasks {
		items := make([]interface{}, 0, len(tasks))
		for _, task := range tasks {
			items = append(items, task.Record())
		}
		related[kind] = items
	}

	return Record{
		"id":            t.ID,
		"text":          t.Text,
		"description":   t.Description,
		"done":          t.Done,
		"priority":      t.Priority,
		"labels":        labels,
		"assignees":     assignees,
		"dueDate":       t.DueDate.recordValue(),
		"startDate":     t.StartDate.recordValue(),
		"endDate":       t.EndDate.recordValue(),
		"repeatAfter":   t.RepeatAfter.Seconds(),
		"reminderDates": reminders,
		"parentTaskID":  t.ParentTaskID,
		"hexColor":      stripHash(t.HexColor),
		"percentDone":   t.PercentDone,
		"related_tasks": related,
		"attachments":   attachments,
		"createdBy":     t.CreatedBy.Record(),
		"created":       t.Created.recordValue(),
		"updated":       t.Updated.recordValue(),
		"listID":        t.ListID,
	}
}
