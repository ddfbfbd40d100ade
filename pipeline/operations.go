package pipeline

import (
	"nodechain/authority"
	"nodechain/chainerr"
	"nodechain/evaluator"
	"nodechain/governance"
	"nodechain/trading"
	"nodechain/wire"
	"nodechain/xtypes"
)

// NativeSymbol is the chain's native currency, matching spec.md §8
// Scenario A's example asset ("1000.000000 COIN"). It backs producer
// approval-vote power and is the default content reward currency.
const NativeSymbol = xtypes.Symbol("COIN")

// Operation tags (spec.md §6: "Each operation has a fixed ordinal;
// ordinals must not change without a hardfork").
const (
	TagTransfer evaluator.Tag = iota + 1
	TagStake
	TagBeginUnstake
	TagCreateAccount
	TagUpdateActiveAuthority
	TagUpdateOwnerAuthority
	TagPlaceLimitOrder
	TagCancelLimitOrder
	TagAMMSwap
	TagRegisterProducer
	TagVoteProducer
	TagSubmitWork
	TagPost
	TagVoteContent
	TagViewContent
	TagShareContent
	TagVerifyBlock
	TagCommitBlock
	TagOpenCallOrder
	TagCloseCallOrder
	TagLendCreditPool
	TagRedeemCreditPool
	TagPlaceAuctionOrder
	TagCancelAuctionOrder
	TagOpenMarginOrder
	TagCloseMarginOrder
	TagForceSettle
	TagOpenOptionOrder
	TagExerciseOptionOrder
	TagCloseOptionOrder
	TagNominateMediator
	TagAcceptMediator
	TagDeclineMediator
	TagScheduleCommunityEvent
	TagAttendCommunityEvent
	TagRegisterRole
	TagVoteRole
	TagUnvoteRole
)

// operationDecoders maps every registered tag to its wire decode function,
// consulted by Transaction.UnmarshalWire.
var operationDecoders = map[evaluator.Tag]func(*wire.Reader) (evaluator.Operation, error){
	TagTransfer:              func(r *wire.Reader) (evaluator.Operation, error) { return decodeTransfer(r) },
	TagStake:                 func(r *wire.Reader) (evaluator.Operation, error) { return decodeStake(r) },
	TagBeginUnstake:          func(r *wire.Reader) (evaluator.Operation, error) { return decodeBeginUnstake(r) },
	TagCreateAccount:         func(r *wire.Reader) (evaluator.Operation, error) { return decodeCreateAccount(r) },
	TagUpdateActiveAuthority: func(r *wire.Reader) (evaluator.Operation, error) { return decodeUpdateAuthority(r, evaluator.AuthorityActive) },
	TagUpdateOwnerAuthority:  func(r *wire.Reader) (evaluator.Operation, error) { return decodeUpdateAuthority(r, evaluator.AuthorityOwner) },
	TagPlaceLimitOrder:       func(r *wire.Reader) (evaluator.Operation, error) { return decodePlaceLimitOrder(r) },
	TagCancelLimitOrder:      func(r *wire.Reader) (evaluator.Operation, error) { return decodeCancelLimitOrder(r) },
	TagAMMSwap:               func(r *wire.Reader) (evaluator.Operation, error) { return decodeAMMSwap(r) },
	TagRegisterProducer:      func(r *wire.Reader) (evaluator.Operation, error) { return decodeRegisterProducer(r) },
	TagVoteProducer:          func(r *wire.Reader) (evaluator.Operation, error) { return decodeVoteProducer(r) },
	TagSubmitWork:            func(r *wire.Reader) (evaluator.Operation, error) { return decodeSubmitWork(r) },
	TagPost:                  func(r *wire.Reader) (evaluator.Operation, error) { return decodePost(r) },
	TagVoteContent:           func(r *wire.Reader) (evaluator.Operation, error) { return decodeVoteContent(r) },
	TagViewContent:           func(r *wire.Reader) (evaluator.Operation, error) { return decodeViewContent(r) },
	TagShareContent:          func(r *wire.Reader) (evaluator.Operation, error) { return decodeShareContent(r) },
	TagVerifyBlock:           func(r *wire.Reader) (evaluator.Operation, error) { return decodeVerifyBlock(r) },
	TagCommitBlock:           func(r *wire.Reader) (evaluator.Operation, error) { return decodeCommitBlock(r) },
	TagOpenCallOrder:         func(r *wire.Reader) (evaluator.Operation, error) { return decodeOpenCallOrder(r) },
	TagCloseCallOrder:        func(r *wire.Reader) (evaluator.Operation, error) { return decodeCloseCallOrder(r) },
	TagLendCreditPool:        func(r *wire.Reader) (evaluator.Operation, error) { return decodeLendCreditPool(r) },
	TagRedeemCreditPool:      func(r *wire.Reader) (evaluator.Operation, error) { return decodeRedeemCreditPool(r) },
	TagPlaceAuctionOrder:     func(r *wire.Reader) (evaluator.Operation, error) { return decodePlaceAuctionOrder(r) },
	TagCancelAuctionOrder:    func(r *wire.Reader) (evaluator.Operation, error) { return decodeCancelAuctionOrder(r) },
	TagOpenMarginOrder:       func(r *wire.Reader) (evaluator.Operation, error) { return decodeOpenMarginOrder(r) },
	TagCloseMarginOrder:      func(r *wire.Reader) (evaluator.Operation, error) { return decodeCloseMarginOrder(r) },
	TagForceSettle:           func(r *wire.Reader) (evaluator.Operation, error) { return decodeForceSettle(r) },
	TagOpenOptionOrder:       func(r *wire.Reader) (evaluator.Operation, error) { return decodeOpenOptionOrder(r) },
	TagExerciseOptionOrder:   func(r *wire.Reader) (evaluator.Operation, error) { return decodeExerciseOptionOrder(r) },
	TagCloseOptionOrder:      func(r *wire.Reader) (evaluator.Operation, error) { return decodeCloseOptionOrder(r) },
	TagNominateMediator:       func(r *wire.Reader) (evaluator.Operation, error) { return decodeNominateMediator(r) },
	TagAcceptMediator:         func(r *wire.Reader) (evaluator.Operation, error) { return decodeAcceptMediator(r) },
	TagDeclineMediator:        func(r *wire.Reader) (evaluator.Operation, error) { return decodeDeclineMediator(r) },
	TagScheduleCommunityEvent: func(r *wire.Reader) (evaluator.Operation, error) { return decodeScheduleCommunityEvent(r) },
	TagAttendCommunityEvent:   func(r *wire.Reader) (evaluator.Operation, error) { return decodeAttendCommunityEvent(r) },
	TagRegisterRole:           func(r *wire.Reader) (evaluator.Operation, error) { return decodeRegisterRole(r) },
	TagVoteRole:               func(r *wire.Reader) (evaluator.Operation, error) { return decodeVoteRole(r) },
	TagUnvoteRole:             func(r *wire.Reader) (evaluator.Operation, error) { return decodeUnvoteRole(r) },
}

func putAsset(w *wire.Writer, a xtypes.Asset) {
	w.PutInt64(int64(a.Amount))
	w.PutString(string(a.Symbol))
}

func getAsset(r *wire.Reader) (xtypes.Asset, error) {
	amt, err := r.Int64()
	if err != nil {
		return xtypes.Asset{}, err
	}
	sym, err := r.String()
	if err != nil {
		return xtypes.Asset{}, err
	}
	return xtypes.NewAsset(xtypes.ShareAmount(amt), xtypes.Symbol(sym)), nil
}

func putPrice(w *wire.Writer, p xtypes.Price) {
	putAsset(w, p.Base)
	putAsset(w, p.Quote)
}

func getPrice(r *wire.Reader) (xtypes.Price, error) {
	base, err := getAsset(r)
	if err != nil {
		return xtypes.Price{}, err
	}
	quote, err := getAsset(r)
	if err != nil {
		return xtypes.Price{}, err
	}
	return xtypes.NewPrice(base, quote), nil
}

func putID160(w *wire.Writer, id xtypes.ID160) { w.PutFixed(id[:]) }

func getID160(r *wire.Reader) (xtypes.ID160, error) {
	b, err := r.Fixed(20)
	if err != nil {
		return xtypes.ID160{}, err
	}
	var id xtypes.ID160
	copy(id[:], b)
	return id, nil
}

func putPublicKey(w *wire.Writer, k xtypes.PublicKey) { w.PutBytes(k.Bytes()) }

func getPublicKey(r *wire.Reader) (xtypes.PublicKey, error) {
	b, err := r.Bytes()
	if err != nil {
		return xtypes.PublicKey{}, err
	}
	if len(b) == 0 {
		return xtypes.PublicKey{}, nil
	}
	return xtypes.PublicKeyFromBytes(b)
}

// ---- Transfer ----

// Transfer moves Amount from From's liquid balance to To's (spec.md §8
// Scenario A).
type Transfer struct {
	From, To xtypes.AccountName
	Amount   xtypes.Asset
	Memo     string
}

func (o *Transfer) Tag() evaluator.Tag { return TagTransfer }
func (o *Transfer) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.From, Level: evaluator.AuthorityActive}}
}
func (o *Transfer) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.From))
	w.PutString(string(o.To))
	putAsset(w, o.Amount)
	w.PutString(o.Memo)
}
func decodeTransfer(r *wire.Reader) (*Transfer, error) {
	from, err := r.String()
	if err != nil {
		return nil, err
	}
	to, err := r.String()
	if err != nil {
		return nil, err
	}
	amt, err := getAsset(r)
	if err != nil {
		return nil, err
	}
	memo, err := r.String()
	if err != nil {
		return nil, err
	}
	return &Transfer{From: xtypes.AccountName(from), To: xtypes.AccountName(to), Amount: amt, Memo: memo}, nil
}
func applyTransfer(ctx *Context, op evaluator.Operation) error {
	o := op.(*Transfer)
	return ctx.Ledger.Transfer(o.From, o.To, o.Amount)
}

// ---- Stake ----

type Stake struct {
	Account xtypes.AccountName
	Amount  xtypes.Asset
}

func (o *Stake) Tag() evaluator.Tag { return TagStake }
func (o *Stake) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Account, Level: evaluator.AuthorityActive}}
}
func (o *Stake) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Account))
	putAsset(w, o.Amount)
}
func decodeStake(r *wire.Reader) (*Stake, error) {
	acct, err := r.String()
	if err != nil {
		return nil, err
	}
	amt, err := getAsset(r)
	if err != nil {
		return nil, err
	}
	return &Stake{Account: xtypes.AccountName(acct), Amount: amt}, nil
}
func applyStake(ctx *Context, op evaluator.Operation) error {
	o := op.(*Stake)
	return ctx.Ledger.Stake(o.Account, o.Amount)
}

// ---- BeginUnstake ----

type BeginUnstake struct {
	Account        xtypes.AccountName
	Amount         xtypes.Asset
	PeriodDuration xtypes.TimePoint
}

func (o *BeginUnstake) Tag() evaluator.Tag { return TagBeginUnstake }
func (o *BeginUnstake) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Account, Level: evaluator.AuthorityActive}}
}
func (o *BeginUnstake) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Account))
	putAsset(w, o.Amount)
	w.PutInt64(int64(o.PeriodDuration))
}
func decodeBeginUnstake(r *wire.Reader) (*BeginUnstake, error) {
	acct, err := r.String()
	if err != nil {
		return nil, err
	}
	amt, err := getAsset(r)
	if err != nil {
		return nil, err
	}
	dur, err := r.Int64()
	if err != nil {
		return nil, err
	}
	return &BeginUnstake{Account: xtypes.AccountName(acct), Amount: amt, PeriodDuration: xtypes.TimePoint(dur)}, nil
}

// ---- CreateAccount ----

type CreateAccount struct {
	Creator                   xtypes.AccountName
	Name                      xtypes.AccountName
	Owner, Active, Posting    authority.Authority
	SecureKey                 xtypes.PublicKey
}

func (o *CreateAccount) Tag() evaluator.Tag { return TagCreateAccount }
func (o *CreateAccount) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Creator, Level: evaluator.AuthorityActive}}
}
func marshalAuthority(w *wire.Writer, a authority.Authority) {
	w.PutUvarint(uint64(a.WeightThreshold))
	w.PutUvarint(uint64(len(a.KeyAuths)))
	for _, ka := range a.KeyAuths {
		putPublicKey(w, ka.Key)
		w.PutUvarint(uint64(ka.Weight))
	}
	w.PutUvarint(uint64(len(a.AccountAuths)))
	for _, aa := range a.AccountAuths {
		w.PutString(string(aa.Account))
		w.PutUvarint(uint64(aa.Weight))
	}
}
func unmarshalAuthority(r *wire.Reader) (authority.Authority, error) {
	threshold, err := r.Uvarint()
	if err != nil {
		return authority.Authority{}, err
	}
	keyCount, err := r.Uvarint()
	if err != nil {
		return authority.Authority{}, err
	}
	keys := make([]authority.KeyAuth, 0, keyCount)
	for i := uint64(0); i < keyCount; i++ {
		key, err := getPublicKey(r)
		if err != nil {
			return authority.Authority{}, err
		}
		weight, err := r.Uvarint()
		if err != nil {
			return authority.Authority{}, err
		}
		keys = append(keys, authority.KeyAuth{Key: key, Weight: uint16(weight)})
	}
	acctCount, err := r.Uvarint()
	if err != nil {
		return authority.Authority{}, err
	}
	accts := make([]authority.AccountAuth, 0, acctCount)
	for i := uint64(0); i < acctCount; i++ {
		name, err := r.String()
		if err != nil {
			return authority.Authority{}, err
		}
		weight, err := r.Uvarint()
		if err != nil {
			return authority.Authority{}, err
		}
		accts = append(accts, authority.AccountAuth{Account: xtypes.AccountName(name), Weight: uint16(weight)})
	}
	return authority.Authority{WeightThreshold: uint32(threshold), KeyAuths: keys, AccountAuths: accts}, nil
}
func (o *CreateAccount) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Creator))
	w.PutString(string(o.Name))
	marshalAuthority(w, o.Owner)
	marshalAuthority(w, o.Active)
	marshalAuthority(w, o.Posting)
	putPublicKey(w, o.SecureKey)
}
func decodeCreateAccount(r *wire.Reader) (*CreateAccount, error) {
	creator, err := r.String()
	if err != nil {
		return nil, err
	}
	name, err := r.String()
	if err != nil {
		return nil, err
	}
	owner, err := unmarshalAuthority(r)
	if err != nil {
		return nil, err
	}
	active, err := unmarshalAuthority(r)
	if err != nil {
		return nil, err
	}
	posting, err := unmarshalAuthority(r)
	if err != nil {
		return nil, err
	}
	secureKey, err := getPublicKey(r)
	if err != nil {
		return nil, err
	}
	return &CreateAccount{
		Creator: xtypes.AccountName(creator), Name: xtypes.AccountName(name),
		Owner: owner, Active: active, Posting: posting, SecureKey: secureKey,
	}, nil
}

// ---- UpdateAuthority (active or owner, selected at decode time) ----

type UpdateAuthority struct {
	Account   xtypes.AccountName
	Level     evaluator.AuthorityLevel
	Authority authority.Authority
}

func (o *UpdateAuthority) Tag() evaluator.Tag {
	if o.Level == evaluator.AuthorityOwner {
		return TagUpdateOwnerAuthority
	}
	return TagUpdateActiveAuthority
}
func (o *UpdateAuthority) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Account, Level: o.Level}}
}
func (o *UpdateAuthority) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Account))
	marshalAuthority(w, o.Authority)
}
func decodeUpdateAuthority(r *wire.Reader, level evaluator.AuthorityLevel) (*UpdateAuthority, error) {
	acct, err := r.String()
	if err != nil {
		return nil, err
	}
	auth, err := unmarshalAuthority(r)
	if err != nil {
		return nil, err
	}
	return &UpdateAuthority{Account: xtypes.AccountName(acct), Level: level, Authority: auth}, nil
}

// ---- PlaceLimitOrder / CancelLimitOrder ----

type PlaceLimitOrder struct {
	Seller     xtypes.AccountName
	Sell       xtypes.Asset
	Price      xtypes.Price
	Expiration xtypes.TimePoint
}

func (o *PlaceLimitOrder) Tag() evaluator.Tag { return TagPlaceLimitOrder }
func (o *PlaceLimitOrder) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Seller, Level: evaluator.AuthorityActive}}
}
func (o *PlaceLimitOrder) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Seller))
	putAsset(w, o.Sell)
	putPrice(w, o.Price)
	w.PutInt64(int64(o.Expiration))
}
func decodePlaceLimitOrder(r *wire.Reader) (*PlaceLimitOrder, error) {
	seller, err := r.String()
	if err != nil {
		return nil, err
	}
	sell, err := getAsset(r)
	if err != nil {
		return nil, err
	}
	price, err := getPrice(r)
	if err != nil {
		return nil, err
	}
	exp, err := r.Int64()
	if err != nil {
		return nil, err
	}
	return &PlaceLimitOrder{Seller: xtypes.AccountName(seller), Sell: sell, Price: price, Expiration: xtypes.TimePoint(exp)}, nil
}
func applyPlaceLimitOrder(ctx *Context, op evaluator.Operation) error {
	o := op.(*PlaceLimitOrder)
	_, err := ctx.Book.Place(o.Seller, o.Sell, o.Price, o.Expiration)
	return err
}

type CancelLimitOrder struct {
	Seller  xtypes.AccountName
	OrderID string // spec.md §3.2 UUID order id
}

func (o *CancelLimitOrder) Tag() evaluator.Tag { return TagCancelLimitOrder }
func (o *CancelLimitOrder) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Seller, Level: evaluator.AuthorityActive}}
}
func (o *CancelLimitOrder) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Seller))
	w.PutString(o.OrderID)
}
func decodeCancelLimitOrder(r *wire.Reader) (*CancelLimitOrder, error) {
	seller, err := r.String()
	if err != nil {
		return nil, err
	}
	id, err := r.String()
	if err != nil {
		return nil, err
	}
	return &CancelLimitOrder{Seller: xtypes.AccountName(seller), OrderID: id}, nil
}
func applyCancelLimitOrder(ctx *Context, op evaluator.Operation) error {
	o := op.(*CancelLimitOrder)
	return ctx.Book.Cancel(o.Seller, o.OrderID)
}

// ---- AMMSwap ----

type AMMSwap struct {
	Trader        xtypes.AccountName
	AssetA, AssetB xtypes.Symbol
	In            xtypes.Asset
	MinOut        xtypes.ShareAmount
}

func (o *AMMSwap) Tag() evaluator.Tag { return TagAMMSwap }
func (o *AMMSwap) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Trader, Level: evaluator.AuthorityActive}}
}
func (o *AMMSwap) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Trader))
	w.PutString(string(o.AssetA))
	w.PutString(string(o.AssetB))
	putAsset(w, o.In)
	w.PutInt64(int64(o.MinOut))
}
func decodeAMMSwap(r *wire.Reader) (*AMMSwap, error) {
	trader, err := r.String()
	if err != nil {
		return nil, err
	}
	a, err := r.String()
	if err != nil {
		return nil, err
	}
	b, err := r.String()
	if err != nil {
		return nil, err
	}
	in, err := getAsset(r)
	if err != nil {
		return nil, err
	}
	minOut, err := r.Int64()
	if err != nil {
		return nil, err
	}
	return &AMMSwap{Trader: xtypes.AccountName(trader), AssetA: xtypes.Symbol(a), AssetB: xtypes.Symbol(b), In: in, MinOut: xtypes.ShareAmount(minOut)}, nil
}
func applyAMMSwap(ctx *Context, op evaluator.Operation) error {
	o := op.(*AMMSwap)
	pool, err := ctx.AMM.PoolFor(o.AssetA, o.AssetB)
	if err != nil {
		return err
	}
	_, err = ctx.AMM.Swap(o.Trader, pool, o.In, o.MinOut)
	return err
}

// ---- RegisterProducer / VoteProducer / SubmitWork ----

type RegisterProducer struct {
	Owner      xtypes.AccountName
	SigningKey xtypes.PublicKey
}

func (o *RegisterProducer) Tag() evaluator.Tag { return TagRegisterProducer }
func (o *RegisterProducer) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Owner, Level: evaluator.AuthorityActive}}
}
func (o *RegisterProducer) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Owner))
	putPublicKey(w, o.SigningKey)
}
func decodeRegisterProducer(r *wire.Reader) (*RegisterProducer, error) {
	owner, err := r.String()
	if err != nil {
		return nil, err
	}
	key, err := getPublicKey(r)
	if err != nil {
		return nil, err
	}
	return &RegisterProducer{Owner: xtypes.AccountName(owner), SigningKey: key}, nil
}
func applyRegisterProducer(ctx *Context, op evaluator.Operation) error {
	o := op.(*RegisterProducer)
	_, err := ctx.Governance.Register(o.Owner, o.SigningKey)
	return err
}

type VoteProducer struct {
	Voter    xtypes.AccountName
	Producer xtypes.AccountName
}

func (o *VoteProducer) Tag() evaluator.Tag { return TagVoteProducer }
func (o *VoteProducer) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Voter, Level: evaluator.AuthorityActive}}
}
func (o *VoteProducer) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Voter))
	w.PutString(string(o.Producer))
}
func decodeVoteProducer(r *wire.Reader) (*VoteProducer, error) {
	voter, err := r.String()
	if err != nil {
		return nil, err
	}
	producer, err := r.String()
	if err != nil {
		return nil, err
	}
	return &VoteProducer{Voter: xtypes.AccountName(voter), Producer: xtypes.AccountName(producer)}, nil
}
func applyVoteProducer(ctx *Context, op evaluator.Operation) error {
	o := op.(*VoteProducer)
	power := ctx.Ledger.BalanceOf(o.Voter, NativeSymbol).Staked
	return ctx.Governance.Vote(o.Voter, o.Producer, power)
}

type SubmitWork struct {
	Miner      xtypes.AccountName
	Nonce      uint64
	SigningKey xtypes.PublicKey
}

func (o *SubmitWork) Tag() evaluator.Tag { return TagSubmitWork }
func (o *SubmitWork) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Miner, Level: evaluator.AuthorityActive}}
}
func (o *SubmitWork) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Miner))
	w.PutUvarint(o.Nonce)
	putPublicKey(w, o.SigningKey)
}
func decodeSubmitWork(r *wire.Reader) (*SubmitWork, error) {
	miner, err := r.String()
	if err != nil {
		return nil, err
	}
	nonce, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	key, err := getPublicKey(r)
	if err != nil {
		return nil, err
	}
	return &SubmitWork{Miner: xtypes.AccountName(miner), Nonce: nonce, SigningKey: key}, nil
}
func applySubmitWork(ctx *Context, op evaluator.Operation) error {
	o := op.(*SubmitWork)
	w := governance.Work{PreviousBlockID: ctx.State.Dynamic.HeadBlockID, Miner: o.Miner, Nonce: o.Nonce}
	_, err := ctx.Governance.SubmitWork(w, ctx.PoWTarget, o.SigningKey, ctx.State.Dynamic.Time)
	return err
}

// ---- Post / VoteContent / ViewContent / ShareContent ----

type Post struct {
	Author                       xtypes.AccountName
	Permlink                     string
	ParentAuthor, ParentPermlink string
	RewardSymbol                 xtypes.Symbol
}

func (o *Post) Tag() evaluator.Tag { return TagPost }
func (o *Post) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Author, Level: evaluator.AuthorityPosting}}
}
func (o *Post) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Author))
	w.PutString(o.Permlink)
	w.PutString(o.ParentAuthor)
	w.PutString(o.ParentPermlink)
	w.PutString(string(o.RewardSymbol))
}
func decodePost(r *wire.Reader) (*Post, error) {
	author, err := r.String()
	if err != nil {
		return nil, err
	}
	permlink, err := r.String()
	if err != nil {
		return nil, err
	}
	parentAuthor, err := r.String()
	if err != nil {
		return nil, err
	}
	parentPermlink, err := r.String()
	if err != nil {
		return nil, err
	}
	rewardSymbol, err := r.String()
	if err != nil {
		return nil, err
	}
	return &Post{
		Author: xtypes.AccountName(author), Permlink: permlink,
		ParentAuthor: parentAuthor, ParentPermlink: parentPermlink,
		RewardSymbol: xtypes.Symbol(rewardSymbol),
	}, nil
}
func applyPost(ctx *Context, op evaluator.Operation) error {
	o := op.(*Post)
	_, err := ctx.Content.Post(o.Author, o.Permlink, xtypes.AccountName(o.ParentAuthor), o.ParentPermlink, o.RewardSymbol, ctx.State.Dynamic.Time)
	return err
}

type VoteContent struct {
	Voter          xtypes.AccountName
	Author         xtypes.AccountName
	Permlink       string
	Weight         int16
}

func (o *VoteContent) Tag() evaluator.Tag { return TagVoteContent }
func (o *VoteContent) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Voter, Level: evaluator.AuthorityPosting}}
}
func (o *VoteContent) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Voter))
	w.PutString(string(o.Author))
	w.PutString(o.Permlink)
	w.PutInt64(int64(o.Weight))
}
func decodeVoteContent(r *wire.Reader) (*VoteContent, error) {
	voter, err := r.String()
	if err != nil {
		return nil, err
	}
	author, err := r.String()
	if err != nil {
		return nil, err
	}
	permlink, err := r.String()
	if err != nil {
		return nil, err
	}
	weight, err := r.Int64()
	if err != nil {
		return nil, err
	}
	return &VoteContent{Voter: xtypes.AccountName(voter), Author: xtypes.AccountName(author), Permlink: permlink, Weight: int16(weight)}, nil
}
func applyVoteContent(ctx *Context, op evaluator.Operation) error {
	o := op.(*VoteContent)
	c, err := ctx.Content.Find(o.Author, o.Permlink)
	if err != nil {
		return err
	}
	staked := ctx.Ledger.BalanceOf(o.Voter, NativeSymbol).Staked
	return ctx.Content.Vote(c, o.Voter, o.Weight, staked, ctx.State.Dynamic.Time)
}

type ViewContent struct {
	Viewer   xtypes.AccountName
	Author   xtypes.AccountName
	Permlink string
}

func (o *ViewContent) Tag() evaluator.Tag { return TagViewContent }
func (o *ViewContent) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Viewer, Level: evaluator.AuthorityPosting}}
}
func (o *ViewContent) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Viewer))
	w.PutString(string(o.Author))
	w.PutString(o.Permlink)
}
func decodeViewContent(r *wire.Reader) (*ViewContent, error) {
	viewer, err := r.String()
	if err != nil {
		return nil, err
	}
	author, err := r.String()
	if err != nil {
		return nil, err
	}
	permlink, err := r.String()
	if err != nil {
		return nil, err
	}
	return &ViewContent{Viewer: xtypes.AccountName(viewer), Author: xtypes.AccountName(author), Permlink: permlink}, nil
}
func applyViewContent(ctx *Context, op evaluator.Operation) error {
	o := op.(*ViewContent)
	c, err := ctx.Content.Find(o.Author, o.Permlink)
	if err != nil {
		return err
	}
	return ctx.Content.View(c, o.Viewer, ctx.State.Dynamic.Time)
}

type ShareContent struct {
	Sharer   xtypes.AccountName
	Author   xtypes.AccountName
	Permlink string
}

func (o *ShareContent) Tag() evaluator.Tag { return TagShareContent }
func (o *ShareContent) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Sharer, Level: evaluator.AuthorityPosting}}
}
func (o *ShareContent) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Sharer))
	w.PutString(string(o.Author))
	w.PutString(o.Permlink)
}
func decodeShareContent(r *wire.Reader) (*ShareContent, error) {
	sharer, err := r.String()
	if err != nil {
		return nil, err
	}
	author, err := r.String()
	if err != nil {
		return nil, err
	}
	permlink, err := r.String()
	if err != nil {
		return nil, err
	}
	return &ShareContent{Sharer: xtypes.AccountName(sharer), Author: xtypes.AccountName(author), Permlink: permlink}, nil
}
func applyShareContent(ctx *Context, op evaluator.Operation) error {
	o := op.(*ShareContent)
	c, err := ctx.Content.Find(o.Author, o.Permlink)
	if err != nil {
		return err
	}
	return ctx.Content.Share(c, o.Sharer, ctx.State.Dynamic.Time)
}

// ---- VerifyBlock / CommitBlock ----

type VerifyBlock struct {
	Producer    xtypes.AccountName
	BlockNumber uint64
	BlockID     xtypes.ID160
}

func (o *VerifyBlock) Tag() evaluator.Tag { return TagVerifyBlock }
func (o *VerifyBlock) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Producer, Level: evaluator.AuthorityActive}}
}
func (o *VerifyBlock) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Producer))
	w.PutUvarint(o.BlockNumber)
	putID160(w, o.BlockID)
}
func decodeVerifyBlock(r *wire.Reader) (*VerifyBlock, error) {
	producer, err := r.String()
	if err != nil {
		return nil, err
	}
	num, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	id, err := getID160(r)
	if err != nil {
		return nil, err
	}
	return &VerifyBlock{Producer: xtypes.AccountName(producer), BlockNumber: num, BlockID: id}, nil
}
func applyVerifyBlock(ctx *Context, op evaluator.Operation) error {
	o := op.(*VerifyBlock)
	return ctx.Commitments.VerifyBlock(o.Producer, o.BlockNumber, o.BlockID)
}

type CommitBlock struct {
	Producer    xtypes.AccountName
	BlockNumber uint64
	BlockID     xtypes.ID160
	Stake       xtypes.Asset
}

func (o *CommitBlock) Tag() evaluator.Tag { return TagCommitBlock }
func (o *CommitBlock) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Producer, Level: evaluator.AuthorityActive}}
}
func (o *CommitBlock) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Producer))
	w.PutUvarint(o.BlockNumber)
	putID160(w, o.BlockID)
	putAsset(w, o.Stake)
}
func decodeCommitBlock(r *wire.Reader) (*CommitBlock, error) {
	producer, err := r.String()
	if err != nil {
		return nil, err
	}
	num, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	id, err := getID160(r)
	if err != nil {
		return nil, err
	}
	stake, err := getAsset(r)
	if err != nil {
		return nil, err
	}
	return &CommitBlock{Producer: xtypes.AccountName(producer), BlockNumber: num, BlockID: id, Stake: stake}, nil
}
func applyCommitBlock(ctx *Context, op evaluator.Operation) error {
	o := op.(*CommitBlock)
	return ctx.Commitments.CommitBlock(o.Producer, o.BlockNumber, o.BlockID, o.Stake)
}

// ---- OpenCallOrder / CloseCallOrder ----

type OpenCallOrder struct {
	Borrower        xtypes.AccountName
	DebtSymbol      xtypes.Symbol
	CollateralAsset xtypes.Symbol
	Collateral      xtypes.ShareAmount
	Debt            xtypes.ShareAmount
}

func (o *OpenCallOrder) Tag() evaluator.Tag { return TagOpenCallOrder }
func (o *OpenCallOrder) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Borrower, Level: evaluator.AuthorityActive}}
}
func (o *OpenCallOrder) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Borrower))
	w.PutString(string(o.DebtSymbol))
	w.PutString(string(o.CollateralAsset))
	w.PutInt64(int64(o.Collateral))
	w.PutInt64(int64(o.Debt))
}
func decodeOpenCallOrder(r *wire.Reader) (*OpenCallOrder, error) {
	borrower, err := r.String()
	if err != nil {
		return nil, err
	}
	debtSymbol, err := r.String()
	if err != nil {
		return nil, err
	}
	collateralAsset, err := r.String()
	if err != nil {
		return nil, err
	}
	collateral, err := r.Int64()
	if err != nil {
		return nil, err
	}
	debt, err := r.Int64()
	if err != nil {
		return nil, err
	}
	return &OpenCallOrder{
		Borrower: xtypes.AccountName(borrower), DebtSymbol: xtypes.Symbol(debtSymbol),
		CollateralAsset: xtypes.Symbol(collateralAsset),
		Collateral:      xtypes.ShareAmount(collateral), Debt: xtypes.ShareAmount(debt),
	}, nil
}
func applyOpenCallOrder(ctx *Context, op evaluator.Operation) error {
	o := op.(*OpenCallOrder)
	bitasset, err := ctx.AssetRegistry.BySymbol(o.DebtSymbol)
	if err != nil {
		return err
	}
	bdata, err := ctx.AssetRegistry.BitassetDataOf(bitasset.ID)
	if err != nil {
		return err
	}
	_, err = ctx.CallOrders.Open(o.Borrower, bitasset, bdata, o.CollateralAsset, o.Collateral, o.Debt)
	return err
}

type CloseCallOrder struct {
	Borrower   xtypes.AccountName
	DebtSymbol xtypes.Symbol
	OrderID    uint64
}

func (o *CloseCallOrder) Tag() evaluator.Tag { return TagCloseCallOrder }
func (o *CloseCallOrder) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Borrower, Level: evaluator.AuthorityActive}}
}
func (o *CloseCallOrder) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Borrower))
	w.PutString(string(o.DebtSymbol))
	w.PutUvarint(o.OrderID)
}
func decodeCloseCallOrder(r *wire.Reader) (*CloseCallOrder, error) {
	borrower, err := r.String()
	if err != nil {
		return nil, err
	}
	debtSymbol, err := r.String()
	if err != nil {
		return nil, err
	}
	id, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	return &CloseCallOrder{Borrower: xtypes.AccountName(borrower), DebtSymbol: xtypes.Symbol(debtSymbol), OrderID: id}, nil
}
func applyCloseCallOrder(ctx *Context, op evaluator.Operation) error {
	o := op.(*CloseCallOrder)
	bitasset, err := ctx.AssetRegistry.BySymbol(o.DebtSymbol)
	if err != nil {
		return err
	}
	order, err := findCallOrder(ctx, bitasset.Symbol, o.OrderID, o.Borrower)
	if err != nil {
		return err
	}
	return ctx.CallOrders.Close(order, bitasset)
}
func findCallOrder(ctx *Context, debtSymbol xtypes.Symbol, id uint64, owner xtypes.AccountName) (*trading.CallOrder, error) {
	for _, o := range ctx.CallOrders.ForDebtAsset(debtSymbol) {
		if o.ID == id {
			if o.Borrower != owner {
				return nil, chainerr.New(chainerr.AuthorityInsufficient, "pipeline: only the order's borrower may close it")
			}
			return o, nil
		}
	}
	return nil, chainerr.New(chainerr.NotFound, "pipeline: call order not found")
}

// ---- LendCreditPool / RedeemCreditPool ----

type LendCreditPool struct {
	Lender xtypes.AccountName
	Base   xtypes.Symbol
	Amount xtypes.ShareAmount
}

func (o *LendCreditPool) Tag() evaluator.Tag { return TagLendCreditPool }
func (o *LendCreditPool) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Lender, Level: evaluator.AuthorityActive}}
}
func (o *LendCreditPool) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Lender))
	w.PutString(string(o.Base))
	w.PutInt64(int64(o.Amount))
}
func decodeLendCreditPool(r *wire.Reader) (*LendCreditPool, error) {
	lender, err := r.String()
	if err != nil {
		return nil, err
	}
	base, err := r.String()
	if err != nil {
		return nil, err
	}
	amt, err := r.Int64()
	if err != nil {
		return nil, err
	}
	return &LendCreditPool{Lender: xtypes.AccountName(lender), Base: xtypes.Symbol(base), Amount: xtypes.ShareAmount(amt)}, nil
}
func applyLendCreditPool(ctx *Context, op evaluator.Operation) error {
	o := op.(*LendCreditPool)
	pool, err := ctx.CreditPools.PoolFor(o.Base)
	if err != nil {
		return err
	}
	_, err = ctx.CreditPools.Lend(o.Lender, pool, o.Amount)
	return err
}

type RedeemCreditPool struct {
	Lender xtypes.AccountName
	Base   xtypes.Symbol
	Shares xtypes.ShareAmount
}

func (o *RedeemCreditPool) Tag() evaluator.Tag { return TagRedeemCreditPool }
func (o *RedeemCreditPool) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Lender, Level: evaluator.AuthorityActive}}
}
func (o *RedeemCreditPool) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Lender))
	w.PutString(string(o.Base))
	w.PutInt64(int64(o.Shares))
}
func decodeRedeemCreditPool(r *wire.Reader) (*RedeemCreditPool, error) {
	lender, err := r.String()
	if err != nil {
		return nil, err
	}
	base, err := r.String()
	if err != nil {
		return nil, err
	}
	shares, err := r.Int64()
	if err != nil {
		return nil, err
	}
	return &RedeemCreditPool{Lender: xtypes.AccountName(lender), Base: xtypes.Symbol(base), Shares: xtypes.ShareAmount(shares)}, nil
}
func applyRedeemCreditPool(ctx *Context, op evaluator.Operation) error {
	o := op.(*RedeemCreditPool)
	pool, err := ctx.CreditPools.PoolFor(o.Base)
	if err != nil {
		return err
	}
	_, err = ctx.CreditPools.Redeem(o.Lender, pool, o.Shares)
	return err
}

// ---- PlaceAuctionOrder / CancelAuctionOrder ----

type PlaceAuctionOrder struct {
	Seller     xtypes.AccountName
	Sell       xtypes.Asset
	LimitPrice xtypes.Price
	Expiration xtypes.TimePoint
}

func (o *PlaceAuctionOrder) Tag() evaluator.Tag { return TagPlaceAuctionOrder }
func (o *PlaceAuctionOrder) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Seller, Level: evaluator.AuthorityActive}}
}
func (o *PlaceAuctionOrder) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Seller))
	putAsset(w, o.Sell)
	putPrice(w, o.LimitPrice)
	w.PutInt64(int64(o.Expiration))
}
func decodePlaceAuctionOrder(r *wire.Reader) (*PlaceAuctionOrder, error) {
	seller, err := r.String()
	if err != nil {
		return nil, err
	}
	sell, err := getAsset(r)
	if err != nil {
		return nil, err
	}
	price, err := getPrice(r)
	if err != nil {
		return nil, err
	}
	exp, err := r.Int64()
	if err != nil {
		return nil, err
	}
	return &PlaceAuctionOrder{Seller: xtypes.AccountName(seller), Sell: sell, LimitPrice: price, Expiration: xtypes.TimePoint(exp)}, nil
}
func applyPlaceAuctionOrder(ctx *Context, op evaluator.Operation) error {
	o := op.(*PlaceAuctionOrder)
	_, err := ctx.Auctions.Place(o.Seller, o.Sell, o.LimitPrice, o.Expiration)
	return err
}

type CancelAuctionOrder struct {
	Seller  xtypes.AccountName
	OrderID string // spec.md §3.2 UUID order id
}

func (o *CancelAuctionOrder) Tag() evaluator.Tag { return TagCancelAuctionOrder }
func (o *CancelAuctionOrder) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Seller, Level: evaluator.AuthorityActive}}
}
func (o *CancelAuctionOrder) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Seller))
	w.PutString(o.OrderID)
}
func decodeCancelAuctionOrder(r *wire.Reader) (*CancelAuctionOrder, error) {
	seller, err := r.String()
	if err != nil {
		return nil, err
	}
	id, err := r.String()
	if err != nil {
		return nil, err
	}
	return &CancelAuctionOrder{Seller: xtypes.AccountName(seller), OrderID: id}, nil
}
func applyCancelAuctionOrder(ctx *Context, op evaluator.Operation) error {
	o := op.(*CancelAuctionOrder)
	return ctx.Auctions.Cancel(o.Seller, o.OrderID)
}

// ---- OpenMarginOrder / CloseMarginOrder ----

type OpenMarginOrder struct {
	Owner           xtypes.AccountName
	Base            xtypes.Symbol
	CollateralAsset xtypes.Symbol
	Collateral      xtypes.ShareAmount
	Debt            xtypes.ShareAmount
	PositionAsset   xtypes.Symbol
	EntryPrice      xtypes.Price
}

func (o *OpenMarginOrder) Tag() evaluator.Tag { return TagOpenMarginOrder }
func (o *OpenMarginOrder) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Owner, Level: evaluator.AuthorityActive}}
}
func (o *OpenMarginOrder) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Owner))
	w.PutString(string(o.Base))
	w.PutString(string(o.CollateralAsset))
	w.PutInt64(int64(o.Collateral))
	w.PutInt64(int64(o.Debt))
	w.PutString(string(o.PositionAsset))
	putPrice(w, o.EntryPrice)
}
func decodeOpenMarginOrder(r *wire.Reader) (*OpenMarginOrder, error) {
	owner, err := r.String()
	if err != nil {
		return nil, err
	}
	base, err := r.String()
	if err != nil {
		return nil, err
	}
	collateralAsset, err := r.String()
	if err != nil {
		return nil, err
	}
	collateral, err := r.Int64()
	if err != nil {
		return nil, err
	}
	debt, err := r.Int64()
	if err != nil {
		return nil, err
	}
	positionAsset, err := r.String()
	if err != nil {
		return nil, err
	}
	price, err := getPrice(r)
	if err != nil {
		return nil, err
	}
	return &OpenMarginOrder{
		Owner: xtypes.AccountName(owner), Base: xtypes.Symbol(base),
		CollateralAsset: xtypes.Symbol(collateralAsset), Collateral: xtypes.ShareAmount(collateral),
		Debt: xtypes.ShareAmount(debt), PositionAsset: xtypes.Symbol(positionAsset), EntryPrice: price,
	}, nil
}
func applyOpenMarginOrder(ctx *Context, op evaluator.Operation) error {
	o := op.(*OpenMarginOrder)
	pool, err := ctx.CreditPools.PoolFor(o.Base)
	if err != nil {
		return err
	}
	_, err = ctx.MarginOrders.Open(o.Owner, pool, o.CollateralAsset, o.Collateral, o.Debt, o.PositionAsset, o.EntryPrice, ctx.State.Dynamic.Time)
	return err
}

type CloseMarginOrder struct {
	Owner   xtypes.AccountName
	Base    xtypes.Symbol
	OrderID string // spec.md §3.2 UUID order id
}

func (o *CloseMarginOrder) Tag() evaluator.Tag { return TagCloseMarginOrder }
func (o *CloseMarginOrder) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Owner, Level: evaluator.AuthorityActive}}
}
func (o *CloseMarginOrder) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Owner))
	w.PutString(string(o.Base))
	w.PutString(o.OrderID)
}
func decodeCloseMarginOrder(r *wire.Reader) (*CloseMarginOrder, error) {
	owner, err := r.String()
	if err != nil {
		return nil, err
	}
	base, err := r.String()
	if err != nil {
		return nil, err
	}
	id, err := r.String()
	if err != nil {
		return nil, err
	}
	return &CloseMarginOrder{Owner: xtypes.AccountName(owner), Base: xtypes.Symbol(base), OrderID: id}, nil
}
func applyCloseMarginOrder(ctx *Context, op evaluator.Operation) error {
	o := op.(*CloseMarginOrder)
	pool, err := ctx.CreditPools.PoolFor(o.Base)
	if err != nil {
		return err
	}
	found, err := ctx.MarginOrders.GetByUUID(o.OrderID)
	if err != nil {
		return chainerr.New(chainerr.NotFound, "pipeline: margin order not found")
	}
	if found.Owner != o.Owner {
		return chainerr.New(chainerr.AuthorityInsufficient, "pipeline: only the order's owner may close it")
	}
	return ctx.MarginOrders.Close(found, pool)
}

// ---- ForceSettle ----

type ForceSettle struct {
	Owner      xtypes.AccountName
	DebtSymbol xtypes.Symbol
	Amount     xtypes.ShareAmount
	Delay      xtypes.TimePoint
}

func (o *ForceSettle) Tag() evaluator.Tag { return TagForceSettle }
func (o *ForceSettle) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Owner, Level: evaluator.AuthorityActive}}
}
func (o *ForceSettle) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Owner))
	w.PutString(string(o.DebtSymbol))
	w.PutInt64(int64(o.Amount))
	w.PutInt64(int64(o.Delay))
}
func decodeForceSettle(r *wire.Reader) (*ForceSettle, error) {
	owner, err := r.String()
	if err != nil {
		return nil, err
	}
	debtSymbol, err := r.String()
	if err != nil {
		return nil, err
	}
	amt, err := r.Int64()
	if err != nil {
		return nil, err
	}
	delay, err := r.Int64()
	if err != nil {
		return nil, err
	}
	return &ForceSettle{Owner: xtypes.AccountName(owner), DebtSymbol: xtypes.Symbol(debtSymbol), Amount: xtypes.ShareAmount(amt), Delay: xtypes.TimePoint(delay)}, nil
}
func applyForceSettle(ctx *Context, op evaluator.Operation) error {
	o := op.(*ForceSettle)
	bitasset, err := ctx.AssetRegistry.BySymbol(o.DebtSymbol)
	if err != nil {
		return err
	}
	_, err = ctx.Settlements.ForceSettle(o.Owner, bitasset, o.Amount, ctx.State.Dynamic.Time, o.Delay)
	return err
}

// ---- OpenOptionOrder / ExerciseOptionOrder / CloseOptionOrder ----

type OpenOptionOrder struct {
	Owner           xtypes.AccountName
	OptionAsset     xtypes.Symbol
	UnderlyingAsset xtypes.Symbol
	Underlying      xtypes.ShareAmount
	Position        xtypes.ShareAmount
	Strike          xtypes.Price
	Kind            trading.OptionKind
	Expiration      xtypes.TimePoint
}

func (o *OpenOptionOrder) Tag() evaluator.Tag { return TagOpenOptionOrder }
func (o *OpenOptionOrder) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Owner, Level: evaluator.AuthorityActive}}
}
func (o *OpenOptionOrder) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Owner))
	w.PutString(string(o.OptionAsset))
	w.PutString(string(o.UnderlyingAsset))
	w.PutInt64(int64(o.Underlying))
	w.PutInt64(int64(o.Position))
	putPrice(w, o.Strike)
	w.PutUvarint(uint64(o.Kind))
	w.PutInt64(int64(o.Expiration))
}
func decodeOpenOptionOrder(r *wire.Reader) (*OpenOptionOrder, error) {
	owner, err := r.String()
	if err != nil {
		return nil, err
	}
	optionAsset, err := r.String()
	if err != nil {
		return nil, err
	}
	underlyingAsset, err := r.String()
	if err != nil {
		return nil, err
	}
	underlying, err := r.Int64()
	if err != nil {
		return nil, err
	}
	position, err := r.Int64()
	if err != nil {
		return nil, err
	}
	strike, err := getPrice(r)
	if err != nil {
		return nil, err
	}
	kind, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	exp, err := r.Int64()
	if err != nil {
		return nil, err
	}
	return &OpenOptionOrder{
		Owner: xtypes.AccountName(owner), OptionAsset: xtypes.Symbol(optionAsset),
		UnderlyingAsset: xtypes.Symbol(underlyingAsset), Underlying: xtypes.ShareAmount(underlying),
		Position: xtypes.ShareAmount(position), Strike: strike, Kind: trading.OptionKind(kind),
		Expiration: xtypes.TimePoint(exp),
	}, nil
}
func applyOpenOptionOrder(ctx *Context, op evaluator.Operation) error {
	o := op.(*OpenOptionOrder)
	optionAsset, err := ctx.AssetRegistry.BySymbol(o.OptionAsset)
	if err != nil {
		return err
	}
	_, err = ctx.OptionOrders.Open(o.Owner, optionAsset, o.UnderlyingAsset, o.Underlying, o.Position, o.Strike, o.Kind, o.Expiration)
	return err
}

type ExerciseOptionOrder struct {
	Owner       xtypes.AccountName
	OrderID     string // spec.md §3.2 UUID order id
	SettlePrice xtypes.Price
}

func (o *ExerciseOptionOrder) Tag() evaluator.Tag { return TagExerciseOptionOrder }
func (o *ExerciseOptionOrder) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Owner, Level: evaluator.AuthorityActive}}
}
func (o *ExerciseOptionOrder) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Owner))
	w.PutString(o.OrderID)
	putPrice(w, o.SettlePrice)
}
func decodeExerciseOptionOrder(r *wire.Reader) (*ExerciseOptionOrder, error) {
	owner, err := r.String()
	if err != nil {
		return nil, err
	}
	id, err := r.String()
	if err != nil {
		return nil, err
	}
	settlePrice, err := getPrice(r)
	if err != nil {
		return nil, err
	}
	return &ExerciseOptionOrder{Owner: xtypes.AccountName(owner), OrderID: id, SettlePrice: settlePrice}, nil
}
func applyExerciseOptionOrder(ctx *Context, op evaluator.Operation) error {
	o := op.(*ExerciseOptionOrder)
	found, err := ctx.OptionOrders.GetByUUID(o.OrderID)
	if err != nil {
		return chainerr.New(chainerr.NotFound, "pipeline: option order not found")
	}
	if found.Owner != o.Owner {
		return chainerr.New(chainerr.AuthorityInsufficient, "pipeline: only the order's owner may exercise it")
	}
	return ctx.OptionOrders.Exercise(found, o.SettlePrice, ctx.State.Dynamic.Time)
}

type CloseOptionOrder struct {
	Owner   xtypes.AccountName
	OrderID string // spec.md §3.2 UUID order id
}

func (o *CloseOptionOrder) Tag() evaluator.Tag { return TagCloseOptionOrder }
func (o *CloseOptionOrder) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Owner, Level: evaluator.AuthorityActive}}
}
func (o *CloseOptionOrder) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Owner))
	w.PutString(o.OrderID)
}
func decodeCloseOptionOrder(r *wire.Reader) (*CloseOptionOrder, error) {
	owner, err := r.String()
	if err != nil {
		return nil, err
	}
	id, err := r.String()
	if err != nil {
		return nil, err
	}
	return &CloseOptionOrder{Owner: xtypes.AccountName(owner), OrderID: id}, nil
}
func applyCloseOptionOrder(ctx *Context, op evaluator.Operation) error {
	o := op.(*CloseOptionOrder)
	found, err := ctx.OptionOrders.GetByUUID(o.OrderID)
	if err != nil {
		return chainerr.New(chainerr.NotFound, "pipeline: option order not found")
	}
	if found.Owner != o.Owner {
		return chainerr.New(chainerr.AuthorityInsufficient, "pipeline: only the order's owner may close it")
	}
	return ctx.OptionOrders.Close(found)
}

// ---- NominateMediator / AcceptMediator / DeclineMediator ----

type NominateMediator struct {
	Account           xtypes.AccountName
	Stake             xtypes.ShareAmount
	MinAcceptedRating uint32
}

func (o *NominateMediator) Tag() evaluator.Tag { return TagNominateMediator }
func (o *NominateMediator) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Account, Level: evaluator.AuthorityActive}}
}
func (o *NominateMediator) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Account))
	w.PutInt64(int64(o.Stake))
	w.PutUint32(o.MinAcceptedRating)
}
func decodeNominateMediator(r *wire.Reader) (*NominateMediator, error) {
	account, err := r.String()
	if err != nil {
		return nil, err
	}
	stake, err := r.Int64()
	if err != nil {
		return nil, err
	}
	minRating, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	return &NominateMediator{Account: xtypes.AccountName(account), Stake: xtypes.ShareAmount(stake), MinAcceptedRating: minRating}, nil
}
func applyNominateMediator(ctx *Context, op evaluator.Operation) error {
	o := op.(*NominateMediator)
	_, err := ctx.Content.NominateMediator(o.Account, o.Stake, o.MinAcceptedRating)
	return err
}

type AcceptMediator struct {
	Account xtypes.AccountName
}

func (o *AcceptMediator) Tag() evaluator.Tag { return TagAcceptMediator }
func (o *AcceptMediator) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Account, Level: evaluator.AuthorityActive}}
}
func (o *AcceptMediator) MarshalWire(w *wire.Writer) { w.PutString(string(o.Account)) }
func decodeAcceptMediator(r *wire.Reader) (*AcceptMediator, error) {
	account, err := r.String()
	if err != nil {
		return nil, err
	}
	return &AcceptMediator{Account: xtypes.AccountName(account)}, nil
}
func applyAcceptMediator(ctx *Context, op evaluator.Operation) error {
	o := op.(*AcceptMediator)
	return ctx.Content.AcceptMediator(o.Account)
}

type DeclineMediator struct {
	Account xtypes.AccountName
}

func (o *DeclineMediator) Tag() evaluator.Tag { return TagDeclineMediator }
func (o *DeclineMediator) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Account, Level: evaluator.AuthorityActive}}
}
func (o *DeclineMediator) MarshalWire(w *wire.Writer) { w.PutString(string(o.Account)) }
func decodeDeclineMediator(r *wire.Reader) (*DeclineMediator, error) {
	account, err := r.String()
	if err != nil {
		return nil, err
	}
	return &DeclineMediator{Account: xtypes.AccountName(account)}, nil
}
func applyDeclineMediator(ctx *Context, op evaluator.Operation) error {
	o := op.(*DeclineMediator)
	return ctx.Content.DeclineMediator(o.Account)
}

// ---- ScheduleCommunityEvent / AttendCommunityEvent ----

type ScheduleCommunityEvent struct {
	Owner       xtypes.AccountName
	CommunityID uint64
	Name        string
	StartTime   xtypes.TimePoint
	EndTime     xtypes.TimePoint
}

func (o *ScheduleCommunityEvent) Tag() evaluator.Tag { return TagScheduleCommunityEvent }
func (o *ScheduleCommunityEvent) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Owner, Level: evaluator.AuthorityPosting}}
}
func (o *ScheduleCommunityEvent) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Owner))
	w.PutUvarint(o.CommunityID)
	w.PutString(o.Name)
	w.PutInt64(int64(o.StartTime))
	w.PutInt64(int64(o.EndTime))
}
func decodeScheduleCommunityEvent(r *wire.Reader) (*ScheduleCommunityEvent, error) {
	owner, err := r.String()
	if err != nil {
		return nil, err
	}
	communityID, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	name, err := r.String()
	if err != nil {
		return nil, err
	}
	start, err := r.Int64()
	if err != nil {
		return nil, err
	}
	end, err := r.Int64()
	if err != nil {
		return nil, err
	}
	return &ScheduleCommunityEvent{
		Owner: xtypes.AccountName(owner), CommunityID: communityID, Name: name,
		StartTime: xtypes.TimePoint(start), EndTime: xtypes.TimePoint(end),
	}, nil
}
func applyScheduleCommunityEvent(ctx *Context, op evaluator.Operation) error {
	o := op.(*ScheduleCommunityEvent)
	community, err := ctx.Content.FindCommunityByID(o.CommunityID)
	if err != nil {
		return err
	}
	if community.Owner != o.Owner {
		return chainerr.New(chainerr.AuthorityInsufficient, "pipeline: only a community's owner may schedule its events")
	}
	_, err = ctx.Content.ScheduleCommunityEvent(community, o.Name, o.StartTime, o.EndTime)
	return err
}

type AttendCommunityEvent struct {
	Account xtypes.AccountName
	EventID uint64
}

func (o *AttendCommunityEvent) Tag() evaluator.Tag { return TagAttendCommunityEvent }
func (o *AttendCommunityEvent) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Account, Level: evaluator.AuthorityPosting}}
}
func (o *AttendCommunityEvent) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Account))
	w.PutUvarint(o.EventID)
}
func decodeAttendCommunityEvent(r *wire.Reader) (*AttendCommunityEvent, error) {
	account, err := r.String()
	if err != nil {
		return nil, err
	}
	eventID, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	return &AttendCommunityEvent{Account: xtypes.AccountName(account), EventID: eventID}, nil
}
func applyAttendCommunityEvent(ctx *Context, op evaluator.Operation) error {
	o := op.(*AttendCommunityEvent)
	event, err := ctx.Content.FindCommunityEventByID(o.EventID)
	if err != nil {
		return err
	}
	return ctx.Content.AttendCommunityEvent(event, o.Account, ctx.State.Dynamic.Time)
}

// ---- RegisterRole / VoteRole / UnvoteRole ----

type RegisterRole struct {
	Owner xtypes.AccountName
	Kind  governance.RoleKind
}

func (o *RegisterRole) Tag() evaluator.Tag { return TagRegisterRole }
func (o *RegisterRole) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Owner, Level: evaluator.AuthorityActive}}
}
func (o *RegisterRole) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Owner))
	w.PutUvarint(uint64(o.Kind))
}
func decodeRegisterRole(r *wire.Reader) (*RegisterRole, error) {
	owner, err := r.String()
	if err != nil {
		return nil, err
	}
	kind, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	return &RegisterRole{Owner: xtypes.AccountName(owner), Kind: governance.RoleKind(kind)}, nil
}
func applyRegisterRole(ctx *Context, op evaluator.Operation) error {
	o := op.(*RegisterRole)
	_, err := ctx.ElectedRoles.Register(o.Kind, o.Owner)
	return err
}

type VoteRole struct {
	Voter xtypes.AccountName
	Kind  governance.RoleKind
	Owner xtypes.AccountName
}

func (o *VoteRole) Tag() evaluator.Tag { return TagVoteRole }
func (o *VoteRole) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Voter, Level: evaluator.AuthorityActive}}
}
func (o *VoteRole) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Voter))
	w.PutUvarint(uint64(o.Kind))
	w.PutString(string(o.Owner))
}
func decodeVoteRole(r *wire.Reader) (*VoteRole, error) {
	voter, err := r.String()
	if err != nil {
		return nil, err
	}
	kind, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	owner, err := r.String()
	if err != nil {
		return nil, err
	}
	return &VoteRole{Voter: xtypes.AccountName(voter), Kind: governance.RoleKind(kind), Owner: xtypes.AccountName(owner)}, nil
}
func applyVoteRole(ctx *Context, op evaluator.Operation) error {
	o := op.(*VoteRole)
	power := ctx.Ledger.BalanceOf(o.Voter, NativeSymbol).Staked
	return ctx.ElectedRoles.Vote(o.Voter, o.Kind, o.Owner, power)
}

type UnvoteRole struct {
	Voter xtypes.AccountName
	Kind  governance.RoleKind
	Owner xtypes.AccountName
}

func (o *UnvoteRole) Tag() evaluator.Tag { return TagUnvoteRole }
func (o *UnvoteRole) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.Voter, Level: evaluator.AuthorityActive}}
}
func (o *UnvoteRole) MarshalWire(w *wire.Writer) {
	w.PutString(string(o.Voter))
	w.PutUvarint(uint64(o.Kind))
	w.PutString(string(o.Owner))
}
func decodeUnvoteRole(r *wire.Reader) (*UnvoteRole, error) {
	voter, err := r.String()
	if err != nil {
		return nil, err
	}
	kind, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	owner, err := r.String()
	if err != nil {
		return nil, err
	}
	return &UnvoteRole{Voter: xtypes.AccountName(voter), Kind: governance.RoleKind(kind), Owner: xtypes.AccountName(owner)}, nil
}
func applyUnvoteRole(ctx *Context, op evaluator.Operation) error {
	o := op.(*UnvoteRole)
	return ctx.ElectedRoles.Unvote(o.Voter, o.Kind, o.Owner)
}

// RegisterHandlers wires every operation tag above into reg (spec.md §4.1
// "Evaluator registry"). Called once, by NewContext.
func RegisterHandlers(reg *evaluator.Registry[Context]) {
	reg.Register(TagTransfer, applyTransfer)
	reg.Register(TagStake, applyStake)
	reg.Register(TagBeginUnstake, func(ctx *Context, op evaluator.Operation) error {
		o := op.(*BeginUnstake)
		return ctx.Ledger.BeginUnstake(o.Account, o.Amount, ctx.State.Dynamic.Time, o.PeriodDuration)
	})
	reg.Register(TagCreateAccount, func(ctx *Context, op evaluator.Operation) error {
		o := op.(*CreateAccount)
		_, err := ctx.Authorities.Create(o.Name, o.Owner, o.Active, o.Posting, o.SecureKey, ctx.State.Dynamic.Time)
		return err
	})
	reg.Register(TagUpdateActiveAuthority, func(ctx *Context, op evaluator.Operation) error {
		o := op.(*UpdateAuthority)
		return ctx.Authorities.UpdateActive(o.Account, o.Authority)
	})
	reg.Register(TagUpdateOwnerAuthority, func(ctx *Context, op evaluator.Operation) error {
		o := op.(*UpdateAuthority)
		return ctx.Authorities.UpdateOwner(o.Account, o.Authority, ctx.State.Dynamic.Time)
	})
	reg.Register(TagPlaceLimitOrder, applyPlaceLimitOrder)
	reg.Register(TagCancelLimitOrder, applyCancelLimitOrder)
	reg.Register(TagAMMSwap, applyAMMSwap)
	reg.Register(TagRegisterProducer, applyRegisterProducer)
	reg.Register(TagVoteProducer, applyVoteProducer)
	reg.Register(TagSubmitWork, applySubmitWork)
	reg.Register(TagPost, applyPost)
	reg.Register(TagVoteContent, applyVoteContent)
	reg.Register(TagViewContent, applyViewContent)
	reg.Register(TagShareContent, applyShareContent)
	reg.Register(TagVerifyBlock, applyVerifyBlock)
	reg.Register(TagCommitBlock, applyCommitBlock)
	reg.Register(TagOpenCallOrder, applyOpenCallOrder)
	reg.Register(TagCloseCallOrder, applyCloseCallOrder)
	reg.Register(TagLendCreditPool, applyLendCreditPool)
	reg.Register(TagRedeemCreditPool, applyRedeemCreditPool)
	reg.Register(TagPlaceAuctionOrder, applyPlaceAuctionOrder)
	reg.Register(TagCancelAuctionOrder, applyCancelAuctionOrder)
	reg.Register(TagOpenMarginOrder, applyOpenMarginOrder)
	reg.Register(TagCloseMarginOrder, applyCloseMarginOrder)
	reg.Register(TagForceSettle, applyForceSettle)
	reg.Register(TagOpenOptionOrder, applyOpenOptionOrder)
	reg.Register(TagExerciseOptionOrder, applyExerciseOptionOrder)
	reg.Register(TagCloseOptionOrder, applyCloseOptionOrder)
	reg.Register(TagNominateMediator, applyNominateMediator)
	reg.Register(TagAcceptMediator, applyAcceptMediator)
	reg.Register(TagDeclineMediator, applyDeclineMediator)
	reg.Register(TagScheduleCommunityEvent, applyScheduleCommunityEvent)
	reg.Register(TagAttendCommunityEvent, applyAttendCommunityEvent)
	reg.Register(TagRegisterRole, applyRegisterRole)
	reg.Register(TagVoteRole, applyVoteRole)
	reg.Register(TagUnvoteRole, applyUnvoteRole)
}
