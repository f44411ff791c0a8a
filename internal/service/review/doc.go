// Package review implements the quarantine review queue service.
//
// Contacts flagged by the risk scorer (or by reputation-driven bulk import
// screening) are held here in a pending state until an authorized reviewer
// approves or rejects them. Approved contacts re-enter the normal audience;
// rejected contacts are permanently suppressed and can only return after a
// new explicit consent event.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly. Authorization is evaluated from the
// ReviewerContext passed into every call — never from ambient session state.
package review
