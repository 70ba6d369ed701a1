package abi

// MarketplaceABI 市场合约：挂单/购买/取消/改价/拍卖/提现/查询
const MarketplaceABI = `[
  {"inputs":[{"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"}],"name":"listItem","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"tokenId","type":"uint256"}],"name":"buyItem","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"tokenId","type":"uint256"}],"name":"cancelListing","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"tokenId","type":"uint256"},{"name":"newPrice","type":"uint256"}],"name":"updatePrice","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"tokenId","type":"uint256"}],"name":"getListing","outputs":[{"components":[{"name":"tokenId","type":"uint256"},{"name":"seller","type":"address"},{"name":"price","type":"uint256"},{"name":"active","type":"bool"},{"name":"listedAt","type":"uint256"}],"name":"","type":"tuple"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"getActiveListings","outputs":[{"components":[{"name":"tokenId","type":"uint256"},{"name":"seller","type":"address"},{"name":"price","type":"uint256"},{"name":"active","type":"bool"},{"name":"listedAt","type":"uint256"}],"name":"","type":"tuple[]"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"account","type":"address"}],"name":"pendingWithdrawals","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"withdraw","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[],"name":"platformFee","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"nftContract","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"paymentToken","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},

  {"inputs":[{"name":"tokenId","type":"uint256"},{"name":"startPrice","type":"uint256"},{"name":"duration","type":"uint256"}],"name":"createAuction","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"tokenId","type":"uint256"},{"name":"amount","type":"uint256"}],"name":"placeBid","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"tokenId","type":"uint256"}],"name":"endAuction","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"tokenId","type":"uint256"}],"name":"getAuction","outputs":[{"components":[{"name":"tokenId","type":"uint256"},{"name":"seller","type":"address"},{"name":"highestBidder","type":"address"},{"name":"highestBid","type":"uint256"},{"name":"endTime","type":"uint256"},{"name":"active","type":"bool"}],"name":"","type":"tuple"}],"stateMutability":"view","type":"function"},

  {"anonymous":false,"inputs":[{"indexed":true,"name":"tokenId","type":"uint256"},{"indexed":true,"name":"seller","type":"address"},{"indexed":false,"name":"price","type":"uint256"}],"name":"ItemListed","type":"event"},
  {"anonymous":false,"inputs":[{"indexed":true,"name":"tokenId","type":"uint256"},{"indexed":true,"name":"buyer","type":"address"},{"indexed":false,"name":"price","type":"uint256"}],"name":"ItemSold","type":"event"},
  {"anonymous":false,"inputs":[{"indexed":true,"name":"tokenId","type":"uint256"},{"indexed":true,"name":"seller","type":"address"}],"name":"ListingCancelled","type":"event"},
  {"anonymous":false,"inputs":[{"indexed":true,"name":"account","type":"address"},{"indexed":false,"name":"amount","type":"uint256"}],"name":"Withdrawn","type":"event"}
]`
