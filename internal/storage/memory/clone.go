package memory

import (
	"time"

	"github.com/coresight/coresight/internal/types"
)

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneUser(u *types.User) *types.User {
	c := *u
	c.Skills = cloneStrings(u.Skills)
	c.ProfileEmbedding = u.ProfileEmbedding.Clone()
	c.SkillEmbedding = u.SkillEmbedding.Clone()
	return &c
}

func cloneProject(p *types.Project) *types.Project {
	c := *p
	c.ContributorIDs = cloneStrings(p.ContributorIDs)
	return &c
}

func cloneTask(t *types.Task) *types.Task {
	c := *t
	c.RequiredSkills = cloneStrings(t.RequiredSkills)
	c.AssigneeIDs = cloneStrings(t.AssigneeIDs)
	c.DescriptionEmbedding = t.DescriptionEmbedding.Clone()
	c.SkillEmbedding = t.SkillEmbedding.Clone()
	if t.ActivityLog != nil {
		c.ActivityLog = append([]types.ActivityEntry(nil), t.ActivityLog...)
	}
	return &c
}

func cloneIssue(i *types.Issue) *types.Issue {
	c := *i
	c.RequiredSkills = cloneStrings(i.RequiredSkills)
	c.DescriptionEmbedding = i.DescriptionEmbedding.Clone()
	c.SkillEmbedding = i.SkillEmbedding.Clone()
	return &c
}

func cloneCommit(cm *types.Commit) *types.Commit {
	c := *cm
	c.ExtractedSkills = cloneStrings(cm.ExtractedSkills)
	c.SummaryEmbedding = cm.SummaryEmbedding.Clone()
	return &c
}

func cloneSession(s *types.WorkSession) *types.WorkSession {
	c := *s
	c.EndTime = cloneTimePtr(s.EndTime)
	return &c
}

func cloneJob(j *types.JobRequisition) *types.JobRequisition {
	c := *j
	c.RequiredSkills = cloneStrings(j.RequiredSkills)
	c.MissingSkills = cloneStrings(j.MissingSkills)
	return &c
}
