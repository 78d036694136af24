// Package socialcontent provides the content pipeline of a social publishing
// backend with pluggable repository and blob storage backends.
//
// It is built from three parts. ContentStore keeps uploaded media as content
// addressed files: bytes are named by their SHA-256 fingerprint and at most
// one StoredFile exists per fingerprint. AttachmentLifecycle manages the
// attachment set of a post or article; attachments of pending parents are
// deleted at once, while published parents only mark them for a later sweep.
// FeedFanout copies every new post into the feeds of the author's followers
// and merges that feed with recommendations when it is read.
//
// The Service interface ties the parts together around posts, accounts and
// follows. Repositories (memory, Postgres, Redis for feeds) and blob stores
// (memory, filesystem, S3, MinIO) are provided under subpackages.
package socialcontent
