package instagram

import (
	"strconv"
	"time"
)

// Profile holds account-level information returned by AccountInfo.
type Profile struct {
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	FollowerCount  int    `json:"follower_count"`
	FollowingCount int    `json:"following_count"`
	MediaCount     int    `json:"media_count"`
	ProfilePicURL  string `json:"profile_pic_url"`
}

// UserShort identifies the author of a message or comment.
type UserShort struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// Thread is a direct message conversation.
type Thread struct {
	ID    string      `json:"id"`
	Users []UserShort `json:"users"`
}

// Message is a single direct message within a thread.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Sender    UserShort `json:"sender"`
}

// Media is one of the account's own posts.
type Media struct {
	ID           string    `json:"id"`
	Shortcode    string    `json:"shortcode"`
	TakenAt      time.Time `json:"taken_at"`
	CommentCount int       `json:"comment_count"`
}

// Comment is a single comment on a media item.
type Comment struct {
	ID        string    `json:"id"`
	MediaID   string    `json:"media_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	User      UserShort `json:"user"`
}

func toUserShort(u wireUser) UserShort {
	return UserShort{
		UserID:   strconv.FormatInt(u.PK, 10),
		Username: u.Username,
		FullName: u.FullName,
	}
}

// wire types for the private API responses

type wireUser struct {
	PK            int64  `json:"pk"`
	Username      string `json:"username"`
	FullName      string `json:"full_name"`
	ProfilePicURL string `json:"profile_pic_url"`
}

type accountInfoResponse struct {
	Status string `json:"status"`
	User   struct {
		wireUser
		FollowerCount  int `json:"follower_count"`
		FollowingCount int `json:"following_count"`
		MediaCount     int `json:"media_count"`
	} `json:"user"`
}

type inboxResponse struct {
	Status string `json:"status"`
	Inbox  struct {
		Threads []wireThread `json:"threads"`
	} `json:"inbox"`
}

type wireThread struct {
	ThreadID string     `json:"thread_id"`
	Users    []wireUser `json:"users"`
	Items    []wireItem `json:"items"`
}

type threadResponse struct {
	Status string `json:"status"`
	Thread struct {
		ThreadID string     `json:"thread_id"`
		Items    []wireItem `json:"items"`
	} `json:"thread"`
}

type wireItem struct {
	ItemID    string `json:"item_id"`
	UserID    int64  `json:"user_id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // microseconds since epoch
}

type userFeedResponse struct {
	Status string `json:"status"`
	Items  []struct {
		PK           int64  `json:"pk"`
		ID           string `json:"id"`
		Code         string `json:"code"`
		TakenAt      int64  `json:"taken_at"`
		CommentCount int    `json:"comment_count"`
	} `json:"items"`
}

type commentsResponse struct {
	Status   string `json:"status"`
	Comments []struct {
		PK        int64    `json:"pk"`
		Text      string   `json:"text"`
		CreatedAt int64    `json:"created_at"`
		User      wireUser `json:"user"`
	} `json:"comments"`
}

type loginResponse struct {
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	ErrorType     string    `json:"error_type"`
	LoggedInUser  *wireUser `json:"logged_in_user"`
	TwoFactorInfo any       `json:"two_factor_info"`
}

type sendItemResponse struct {
	Status  string `json:"status"`
	Payload struct {
		ItemID    string `json:"item_id"`
		ThreadID  string `json:"thread_id"`
		Timestamp string `json:"timestamp"`
	} `json:"payload"`
}
