package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/orgsync/pkg/domain/remote"
)

// Projects v2 boards are only reachable through GraphQL.

const projectsQuery = `query($login: String!, $cursor: String) {
  organization(login: $login) {
    id
    projectsV2(first: 100, after: $cursor) {
      nodes { title }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

const createProjectMutation = `mutation($owner: ID!, $title: String!) {
  createProjectV2(input: {ownerId: $owner, title: $title}) {
    projectV2 { id }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type projectsData struct {
	Organization *struct {
		ID         string `json:"id"`
		ProjectsV2 struct {
			Nodes []struct {
				Title string `json:"title"`
			} `json:"nodes"`
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
		} `json:"projectsV2"`
	} `json:"organization"`
}

type graphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []graphQLError `json:"errors"`
}

func (c *Client) graphQL(ctx context.Context, op, query string, vars map[string]any, out any) error {
	req, err := c.gh.NewRequest(http.MethodPost, c.graphQLPath, graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return classify(op, err)
	}
	if _, err := c.gh.Do(ctx, req, out); err != nil {
		return classify(op, err)
	}
	return nil
}

func graphQLFailure(errs []graphQLError) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return errors.New(strings.Join(msgs, "; "))
}

// findProject returns the organization node ID and whether a board with the
// given title exists.
func (c *Client) findProject(ctx context.Context, org, title string) (string, bool, error) {
	var (
		ownerID string
		cursor  *string
	)
	for {
		var resp graphQLResponse[projectsData]
		vars := map[string]any{"login": org, "cursor": cursor}
		if err := c.graphQL(ctx, "list projects", projectsQuery, vars, &resp); err != nil {
			return "", false, err
		}
		if len(resp.Errors) > 0 {
			return "", false, classify("list projects", graphQLFailure(resp.Errors))
		}
		if resp.Data.Organization == nil {
			return "", false, classify("list projects", fmt.Errorf("organization %s not found", org))
		}

		ownerID = resp.Data.Organization.ID
		projects := resp.Data.Organization.ProjectsV2
		for _, n := range projects.Nodes {
			if n.Title == title {
				return ownerID, true, nil
			}
		}
		if !projects.PageInfo.HasNextPage {
			return ownerID, false, nil
		}
		next := projects.PageInfo.EndCursor
		cursor = &next
	}
}

func (c *Client) ProjectExists(ctx context.Context, org, title string) (bool, error) {
	_, found, err := c.findProject(ctx, org, title)
	return found, err
}

func (c *Client) CreateProject(ctx context.Context, org, title string) error {
	ownerID, found, err := c.findProject(ctx, org, title)
	if err != nil {
		return err
	}
	if found {
		return remote.Permanent("create project", fmt.Errorf("%w: project %q", remote.ErrAlreadyExists, title))
	}

	var resp graphQLResponse[map[string]any]
	vars := map[string]any{"owner": ownerID, "title": title}
	if err := c.graphQL(ctx, "create project", createProjectMutation, vars, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return classify("create project", graphQLFailure(resp.Errors))
	}
	return nil
}
